// Package submission defines the events exchanged with the downstream
// request collaborator: one SubmissionEvent per accepted request, and one
// ResponseEvent when its response has been received.
package submission

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
	"github.com/mohammed-shakir/geofilter-editor/internal/editor"
)

const Version = 1

type SubmissionEvent struct {
	Version     int                   `json:"version"`
	SessionID   string                `json:"session_id"`
	Token       uint64                `json:"token"`
	Fingerprint string                `json:"fingerprint"`
	Request     model.RequestSnapshot `json:"request"`
	Advisories  []editor.Advisory     `json:"advisories,omitempty"`
	TS          time.Time             `json:"ts"`
}

func FromSubmission(s editor.Submission) SubmissionEvent {
	return SubmissionEvent{
		Version:     Version,
		SessionID:   s.SessionID,
		Token:       s.Token,
		Fingerprint: s.Fingerprint,
		Request:     s.Snapshot,
		Advisories:  s.Advisories,
		TS:          s.SubmittedAt,
	}
}

func (e SubmissionEvent) Validate() error {
	if e.Version != Version {
		return fmt.Errorf("version must be %d", Version)
	}
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("session_id is required")
	}
	if e.Token == 0 {
		return fmt.Errorf("token must be > 0")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if !e.Request.Bias.IsNone() && !e.Request.Restriction.IsNone() {
		return fmt.Errorf("request carries both locationBias and locationRestriction")
	}
	return nil
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

type ResponseEvent struct {
	Version   int       `json:"version"`
	SessionID string    `json:"session_id"`
	Token     uint64    `json:"token"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	TS        time.Time `json:"ts"`
}

func (e ResponseEvent) Validate() error {
	if e.Version != Version {
		return fmt.Errorf("version must be %d", Version)
	}
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("session_id is required")
	}
	if e.Token == 0 {
		return fmt.Errorf("token must be > 0")
	}
	switch e.Status {
	case StatusOK, StatusError:
	default:
		return fmt.Errorf("status must be ok|error")
	}
	return nil
}
