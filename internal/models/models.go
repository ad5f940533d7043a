package models

import "time"

type User struct {
	ID             int64          `json:"_id,string"`
	Username       string         `json:"username"`
	Email          string         `json:"email,omitempty"`
	Password       []byte         `json:"-"`
	Avatar         string         `json:"avatar"`
	Status         UserStatus     `json:"status"`
	Preferences    Preferences    `json:"preferences"`
	LinkedAccounts LinkedAccounts `json:"linkedAccounts"`
	Communities    IDList         `json:"communities"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Author is the resolved view of a user embedded in messages, meetings and
// member lists.
type Author struct {
	ID       int64      `json:"_id,string"`
	Username string     `json:"username"`
	Avatar   string     `json:"avatar"`
	Status   UserStatus `json:"status"`
}

func (u User) Author() Author {
	return Author{ID: u.ID, Username: u.Username, Avatar: u.Avatar, Status: u.Status}
}

type Member struct {
	Author
	Online bool `json:"online"`
}

type Community struct {
	ID          int64     `json:"_id,string"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	OwnerID     int64     `json:"owner,string"`
	Members     IDList    `json:"members"`
	Channels    IDList    `json:"channels"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (c Community) HasMember(userID int64) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}

type Channel struct {
	ID          int64       `json:"_id,string"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        ChannelType `json:"type"`
	CommunityID int64       `json:"community,string"`
	Messages    IDList      `json:"messages"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type Message struct {
	ID        int64       `json:"_id,string"`
	Content   string      `json:"content"`
	Author    Author      `json:"author"`
	ChannelID int64       `json:"channel,string"`
	Type      MessageType `json:"type"`
	IsEdited  bool        `json:"isEdited"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type Meeting struct {
	ID           int64         `json:"_id,string"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	CommunityID  int64         `json:"community,string"`
	ChannelID    int64         `json:"channel,string,omitempty"`
	Organizer    Author        `json:"organizer"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      *time.Time    `json:"endTime,omitempty"`
	Reminder     Reminder      `json:"reminder"`
	Status       MeetingStatus `json:"status"`
	Participants IDList        `json:"participants"`
	MeetingLink  string        `json:"meetingLink"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func (m Meeting) HasParticipant(userID int64) bool {
	for _, id := range m.Participants {
		if id == userID {
			return true
		}
	}
	return false
}
