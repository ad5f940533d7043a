package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
	StatusBusy    UserStatus = "busy"
	StatusAway    UserStatus = "away"
	StatusMeeting UserStatus = "meeting"
)

func (s UserStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusBusy, StatusAway, StatusMeeting:
		return true
	}
	return false
}

type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
	ChannelVideo ChannelType = "video"
)

func (t ChannelType) Valid() bool {
	switch t {
	case ChannelText, ChannelVoice, ChannelVideo:
		return true
	}
	return false
}

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	}
	return false
}

type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingOngoing   MeetingStatus = "ongoing"
	MeetingCompleted MeetingStatus = "completed"
	MeetingCancelled MeetingStatus = "cancelled"
)

func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingScheduled, MeetingOngoing, MeetingCompleted, MeetingCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a meeting may move from s to next. Any
// meeting that isn't cancelled yet can be cancelled, cancelled is terminal.
func (s MeetingStatus) CanTransition(next MeetingStatus) bool {
	if next == MeetingCancelled {
		return s != MeetingCancelled
	}
	switch s {
	case MeetingScheduled:
		return next == MeetingOngoing
	case MeetingOngoing:
		return next == MeetingCompleted
	}
	return false
}

type Reminder string

const (
	ReminderNone Reminder = "none"
	Reminder5    Reminder = "5"
	Reminder10   Reminder = "10"
	Reminder15   Reminder = "15"
)

func (r Reminder) Valid() bool {
	switch r {
	case ReminderNone, Reminder5, Reminder10, Reminder15:
		return true
	}
	return false
}

// IDList is a list of snowflake ids encoded as a JSON array of strings, since
// 64 bit ids don't survive a round trip through javascript numbers.
type IDList []int64

func (l IDList) MarshalJSON() ([]byte, error) {
	strs := make([]string, len(l))
	for i, id := range l {
		strs[i] = strconv.FormatInt(id, 10)
	}
	return json.Marshal(strs)
}

func (l *IDList) UnmarshalJSON(data []byte) error {
	var strs []string
	if err := json.Unmarshal(data, &strs); err != nil {
		return err
	}

	ids := make(IDList, 0, len(strs))
	for _, s := range strs {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	*l = ids
	return nil
}

func (l IDList) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}
