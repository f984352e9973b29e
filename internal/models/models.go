package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type TrackedSection struct {
	Selector string `yaml:"selector"`
	Label    string `yaml:"label"`
}

type Credentials struct {
	ID       string
	Password string
}

// Complete reports whether both halves of the credential pair are present.
func (c Credentials) Complete() bool {
	return c.ID != "" && c.Password != ""
}

type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Session is the opaque login state of the talk collector. The layout mirrors
// a browser storage state so a file written by one loader can be read by the other.
type Session struct {
	Cookies   []Cookie        `json:"cookies"`
	Origins   json.RawMessage `json:"origins,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type TalkSnapshot struct {
	Comments []string `json:"talk_comments"`
}

// NewTalkSnapshot copies ids into canonical numeric order.
func NewTalkSnapshot(ids []string) *TalkSnapshot {
	comments := make([]string, len(ids))
	copy(comments, ids)
	SortIdentifiers(comments)
	return &TalkSnapshot{Comments: comments}
}

type EventKind int

const (
	EventInitialScan EventKind = iota
	EventSectionChanged
	EventNewItems
	EventNewTalk
)

type ChangeEvent struct {
	Kind     EventKind
	Label    string
	NewCount int
}

// InitialScan replaces every per-label event when there is no previous snapshot.
var InitialScan = ChangeEvent{Kind: EventInitialScan}

func (e ChangeEvent) String() string {
	switch e.Kind {
	case EventInitialScan:
		return "initial scan (snapshot created)"
	case EventNewItems:
		if e.NewCount > 0 {
			return fmt.Sprintf("%s (+%d)", e.Label, e.NewCount)
		}
		return e.Label
	case EventNewTalk:
		return fmt.Sprintf("new talk: %d messages", e.NewCount)
	default:
		return e.Label
	}
}

// Mode selects how tracked sections are fingerprinted.
type Mode string

const (
	ModeHash  Mode = "hash"
	ModeItems Mode = "items"
)

func (m Mode) Valid() bool {
	return m == ModeHash || m == ModeItems
}
