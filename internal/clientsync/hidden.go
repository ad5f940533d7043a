package clientsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"converse-backend/internal/models"
)

var ErrNoIdentity = errors.New("hiding a message needs a logged in user")

func HiddenKey(userID int64, channelID int64) string {
	return fmt.Sprintf("hidden:%d:%d", userID, channelID)
}

// HiddenStore keeps the ids a user hid for themselves, per channel, in a JSON
// file. None of it ever reaches the server.
type HiddenStore struct {
	path string

	mutex sync.RWMutex
	sets  map[string]models.IDList
}

// OpenHiddenStore loads path if it exists. The file is created on the first
// hide.
func OpenHiddenStore(path string) (*HiddenStore, error) {
	s := &HiddenStore{path: path, sets: make(map[string]models.IDList)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	} else if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.sets); err != nil {
			return nil, fmt.Errorf("reading hidden messages from %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *HiddenStore) Hide(userID int64, channelID int64, messageID int64) error {
	if userID == 0 {
		return ErrNoIdentity
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := HiddenKey(userID, channelID)
	if s.sets[key].Contains(messageID) {
		return nil
	}
	s.sets[key] = append(s.sets[key], messageID)

	if err := s.save(); err != nil {
		s.sets[key] = s.sets[key][:len(s.sets[key])-1]
		return err
	}
	return nil
}

// save writes to a temporary file first so a crash never leaves half a file.
func (s *HiddenStore) save() error {
	data, err := json.Marshal(s.sets)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *HiddenStore) IsHidden(userID int64, channelID int64, messageID int64) bool {
	if userID == 0 {
		return false
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.sets[HiddenKey(userID, channelID)].Contains(messageID)
}

// Filter drops the messages userID hid in channelID.
func (s *HiddenStore) Filter(userID int64, channelID int64, messages []models.Message) []models.Message {
	s.mutex.RLock()
	hidden := s.sets[HiddenKey(userID, channelID)]
	s.mutex.RUnlock()

	if len(hidden) == 0 {
		return messages
	}

	visible := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if !hidden.Contains(m.ID) {
			visible = append(visible, m)
		}
	}
	return visible
}
