package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownSection = errors.New("invalid preference section")

type AppearancePreferences struct {
	DarkMode      bool `json:"darkMode"`
	CompactLayout bool `json:"compactLayout"`
	AutoUpdates   bool `json:"autoUpdates"`
}

type GeneralPreferences struct {
	AutoJoin bool   `json:"autoJoin"`
	Language string `json:"language"`
	Timezone string `json:"timezone"`
}

type NotificationPreferences struct {
	Messages    bool `json:"messages"`
	Mentions    bool `json:"mentions"`
	Sound       bool `json:"sound"`
	EmailDigest bool `json:"emailDigest"`
}

type PrivacyPreferences struct {
	ShowStatus    bool `json:"showStatus"`
	ReadReceipts  bool `json:"readReceipts"`
	ShareActivity bool `json:"shareActivity"`
}

type Preferences struct {
	Appearance    AppearancePreferences   `json:"appearance"`
	General       GeneralPreferences      `json:"general"`
	Notifications NotificationPreferences `json:"notifications"`
	Privacy       PrivacyPreferences      `json:"privacy"`
}

type LinkedAccounts struct {
	Google    bool `json:"google"`
	Microsoft bool `json:"microsoft"`
	Github    bool `json:"github"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Appearance: AppearancePreferences{DarkMode: true, AutoUpdates: true},
		General:    GeneralPreferences{Language: "English (US)", Timezone: "GMT+05:30"},
		Notifications: NotificationPreferences{
			Messages: true,
			Mentions: true,
			Sound:    true,
		},
		Privacy: PrivacyPreferences{ShowStatus: true, ReadReceipts: true},
	}
}

type PreferenceSection string

const (
	SectionAppearance    PreferenceSection = "appearance"
	SectionGeneral       PreferenceSection = "general"
	SectionNotifications PreferenceSection = "notifications"
	SectionPrivacy       PreferenceSection = "privacy"
	SectionAccounts      PreferenceSection = "accounts"
)

// ApplySection replaces one whole section of the user's preferences with the
// given JSON object. Keys missing from the object take their default value,
// they are not merged with what the user had before.
func (u *User) ApplySection(section PreferenceSection, raw []byte) error {
	defaults := DefaultPreferences()

	switch section {
	case SectionAppearance:
		v := defaults.Appearance
		if err := decodeSection(raw, &v); err != nil {
			return err
		}
		u.Preferences.Appearance = v
	case SectionGeneral:
		v := defaults.General
		if err := decodeSection(raw, &v); err != nil {
			return err
		}
		u.Preferences.General = v
	case SectionNotifications:
		v := defaults.Notifications
		if err := decodeSection(raw, &v); err != nil {
			return err
		}
		u.Preferences.Notifications = v
	case SectionPrivacy:
		v := defaults.Privacy
		if err := decodeSection(raw, &v); err != nil {
			return err
		}
		u.Preferences.Privacy = v
	case SectionAccounts:
		var v LinkedAccounts
		if err := decodeSection(raw, &v); err != nil {
			return err
		}
		u.LinkedAccounts = v
	default:
		return ErrUnknownSection
	}
	return nil
}

func decodeSection(raw []byte, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("preferences update must be an object")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("preferences update: %w", err)
	}
	return nil
}
