package domain

import (
	"errors"
	"fmt"
)

// State is the conversation phase reported by the assistant backend.
type State string

const (
	StateInit          State = "INIT"
	StateFormDiscovery State = "FORM_DISCOVERY"
	StateCollecting    State = "COLLECTING"
	StateReview        State = "REVIEW"
	StateComplete      State = "COMPLETE"
)

var stateLabels = map[State]string{
	StateInit:          "Understanding your requirement",
	StateFormDiscovery: "Identifying the right form",
	StateCollecting:    "Collecting information",
	StateReview:        "Reviewing details",
	StateComplete:      "Form completed",
}

// ParseState converts a wire value into a State.
func ParseState(s string) (State, bool) {
	st := State(s)
	_, ok := stateLabels[st]
	return st, ok
}

// Label returns a human-readable description of the state.
func (s State) Label() string {
	if l, ok := stateLabels[s]; ok {
		return l
	}
	return string(s)
}

// ErrIncompleteForm is returned when a transition to COMPLETE lacks a form or
// collected data.
var ErrIncompleteForm = errors.New("complete state requires an active form and collected data")

// ErrMissingFormType is returned when a form definition has no type.
var ErrMissingFormType = errors.New("form definition has no type")

// Session is the locally tracked view of one backend conversation.
//
// The zero value is a fresh session in INIT. Collected data is only reachable
// through Complete, so a COMPLETE session always carries a form and at least
// one field.
type Session struct {
	ID       string
	Progress string
	Verified bool

	state State
	form  *FormDefinition
	data  CollectedData
}

// NewSession returns a session in INIT with no backend identity.
func NewSession() Session {
	return Session{state: StateInit}
}

// State returns the current phase.
func (s Session) State() State {
	if s.state == "" {
		return StateInit
	}
	return s.state
}

// Form returns a copy of the active form definition, or nil.
func (s Session) Form() *FormDefinition {
	if s.form == nil {
		return nil
	}
	f := s.form.Clone()
	return &f
}

// FormType returns the active form identifier or "".
func (s Session) FormType() string {
	if s.form == nil {
		return ""
	}
	return s.form.Type
}

// CollectedData returns a copy of the collected fields.
func (s Session) CollectedData() CollectedData {
	return s.data.Clone()
}

// StartForm makes def the active form and moves the session into COLLECTING.
// Previously collected data belongs to the old form and is dropped. A
// definition without a type leaves the session untouched.
func (s *Session) StartForm(def FormDefinition) error {
	if def.Type == "" {
		return fmt.Errorf("start form %q: %w", def.DisplayName(), ErrMissingFormType)
	}
	if s.form == nil || s.form.Type != def.Type {
		s.data = nil
	}
	d := def.Clone()
	s.form = &d
	s.state = StateCollecting
	return nil
}

// SetForm replaces the active form definition without changing the state.
func (s *Session) SetForm(def FormDefinition) error {
	if def.Type == "" {
		return fmt.Errorf("set form %q: %w", def.DisplayName(), ErrMissingFormType)
	}
	d := def.Clone()
	s.form = &d
	return nil
}

// Complete replaces the collected data wholesale and moves to COMPLETE.
func (s *Session) Complete(formType string, data CollectedData) error {
	if len(data) == 0 {
		return fmt.Errorf("complete %q: %w", formType, ErrIncompleteForm)
	}
	switch {
	case formType == "" && (s.form == nil || s.form.Type == ""):
		return fmt.Errorf("complete without form type: %w", ErrIncompleteForm)
	case formType != "" && (s.form == nil || s.form.Type != formType):
		s.form = &FormDefinition{Type: formType}
	}
	s.data = data.Clone()
	s.state = StateComplete
	return nil
}

// Transition moves to st. COMPLETE is only reachable when the session already
// holds a form and collected data.
func (s *Session) Transition(st State) error {
	if st == StateComplete && (s.FormType() == "" || len(s.data) == 0) {
		return fmt.Errorf("transition to %s: %w", st, ErrIncompleteForm)
	}
	s.state = st
	return nil
}
