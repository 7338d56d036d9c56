package session

import (
	"github.com/ashureev/intelliform/internal/domain"
)

// SessionView is the JSON form of a domain.Session.
type SessionView struct {
	ID            string                 `json:"id,omitempty"`
	State         domain.State           `json:"state"`
	StateLabel    string                 `json:"stateLabel"`
	FormType      string                 `json:"formType,omitempty"`
	Form          *domain.FormDefinition `json:"form,omitempty"`
	Progress      string                 `json:"progress,omitempty"`
	Verified      bool                   `json:"verified"`
	CollectedData domain.CollectedData   `json:"collectedData,omitempty"`
	CanGenerate   bool                   `json:"canGenerate"`
}

func viewOf(s domain.Session) SessionView {
	return SessionView{
		ID:            s.ID,
		State:         s.State(),
		StateLabel:    s.State().Label(),
		FormType:      s.FormType(),
		Form:          s.Form(),
		Progress:      s.Progress,
		Verified:      s.Verified,
		CollectedData: s.CollectedData(),
		CanGenerate:   s.ID != "" && s.State() == domain.StateComplete,
	}
}

// Reply is the result of one SendMessage call.
type Reply struct {
	User     domain.Message   `json:"user"`
	Messages []domain.Message `json:"messages"`
	Session  SessionView      `json:"session"`
	Degraded bool             `json:"degraded"`
}

// Snapshot is a read-only view of a controller.
type Snapshot struct {
	ViewID      string                     `json:"viewId"`
	Session     SessionView                `json:"session"`
	Messages    []domain.Message           `json:"messages"`
	Artifacts   []domain.GeneratedArtifact `json:"artifacts"`
	Diagnostics []domain.DiagnosticEntry   `json:"diagnostics"`
	Connected   bool                       `json:"connected"`
	Processing  bool                       `json:"processing"`
}
