// Package session persists chats, messages and research sessions in a
// relational store. SQLite is the default; PostgreSQL and MySQL are
// supported through the same schema with rebound placeholders.
package session

import (
	"time"
)

// Status of a research session.
type Status string

const (
	StatusActive               Status = "active"
	StatusWaitingClarification Status = "waiting_clarification"
	StatusResearching          Status = "researching"
	StatusCompleted            Status = "completed"
	StatusSuperseded           Status = "superseded"
	StatusCancelled            Status = "cancelled"
	StatusExpired              Status = "expired"
)

// activeStatuses are the statuses counted against the one-active-session
// rule per chat.
var activeStatuses = []Status{StatusActive, StatusWaitingClarification, StatusResearching}

// Mode of a session.
type Mode string

const (
	ModeChat         Mode = "chat"
	ModeWeb          Mode = "web"
	ModeDeepSearch   Mode = "deep_search"
	ModeDeepResearch Mode = "deep_research"
)

// Session is one research session row, scoped to exactly one chat.
type Session struct {
	ID                   string
	ChatID               string
	OriginalQuery        string
	Mode                 Mode
	Status               Status
	DeepSearchResult     string
	ClarificationAnswers string
	DraftReport          string
	FinalReport          string
	Metadata             map[string]any
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time
}

// Terminal reports whether the session can no longer change, apart from
// its metadata.
func (s *Session) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusSuperseded, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Message is one persisted chat turn.
type Message struct {
	ChatID    string
	MessageID string
	Role      string
	Content   string
	CreatedAt time.Time
}
