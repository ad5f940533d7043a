package clientsync

import (
	"slices"
	"sync"

	"converse-backend/internal/models"
)

// View is the rendered message list of one channel: ordered, each id at
// most once.
type View struct {
	mutex     sync.RWMutex
	channelID int64
	messages  []models.Message

	// while a fetch is in flight, changes are applied and also kept here to
	// be replayed on top of the snapshot
	loading bool
	pending []func()
}

func NewView(channelID int64) *View {
	return &View{channelID: channelID}
}

func (v *View) ChannelID() int64 {
	return v.channelID
}

// Begin marks the start of a fetch. Every change until the next Reset is
// replayed on top of the fetched snapshot, so events that race the request
// are not lost.
func (v *View) Begin() {
	v.mutex.Lock()
	v.loading = true
	v.pending = nil
	v.mutex.Unlock()
}

// Reset replaces the list with a fetched snapshot. Later duplicates of an id
// are dropped.
func (v *View) Reset(snapshot []models.Message) {
	messages := make([]models.Message, 0, len(snapshot))
	seen := make(map[int64]bool, len(snapshot))
	for _, m := range snapshot {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		messages = append(messages, m)
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.messages = messages
	for _, change := range v.pending {
		change()
	}
	v.loading = false
	v.pending = nil
}

func (v *View) indexOf(messageID int64) int {
	return slices.IndexFunc(v.messages, func(m models.Message) bool { return m.ID == messageID })
}

// record keeps change for the replay when a fetch is in flight. The lock is
// held.
func (v *View) record(change func()) {
	if v.loading {
		v.pending = append(v.pending, change)
	}
}

func (v *View) add(message models.Message) bool {
	if v.indexOf(message.ID) >= 0 {
		return false
	}
	v.messages = append(v.messages, message)
	return true
}

func (v *View) update(message models.Message) bool {
	i := v.indexOf(message.ID)
	if i < 0 {
		return false
	}
	v.messages[i] = message
	return true
}

func (v *View) remove(messageID int64) bool {
	i := v.indexOf(messageID)
	if i < 0 {
		return false
	}
	v.messages = slices.Delete(v.messages, i, i+1)
	return true
}

// Add appends message unless its id is already shown.
func (v *View) Add(message models.Message) bool {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.record(func() { v.add(message) })
	return v.add(message)
}

// Update replaces the message with the same id in place.
func (v *View) Update(message models.Message) bool {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.record(func() { v.update(message) })
	return v.update(message)
}

func (v *View) Remove(messageID int64) bool {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.record(func() { v.remove(messageID) })
	return v.remove(messageID)
}

func (v *View) Get(messageID int64) (models.Message, bool) {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	i := v.indexOf(messageID)
	if i < 0 {
		return models.Message{}, false
	}
	return v.messages[i], true
}

// Messages returns a copy of the current list.
func (v *View) Messages() []models.Message {
	v.mutex.RLock()
	defer v.mutex.RUnlock()
	return slices.Clone(v.messages)
}
