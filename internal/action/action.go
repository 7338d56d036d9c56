// Package action defines the canonical form of backend-issued actions and the
// decoders that normalize both wire generations into it.
package action

import "github.com/ashureev/intelliform/internal/domain"

// Encoding records which wire generation produced an action.
type Encoding string

const (
	// EncodingLegacy is the fixed-catalog protocol.
	EncodingLegacy Encoding = "legacy"
	// EncodingUniversal is the dynamic, verified protocol.
	EncodingUniversal Encoding = "universal"
	// EncodingShared marks kinds that both generations emit identically.
	EncodingShared Encoding = "shared"
)

// Wire kinds.
const (
	TypeStartUniversalForm    = "start_universal_form"
	TypeAskUniversalQuestion  = "ask_universal_question"
	TypeUniversalFormComplete = "universal_form_complete"
	TypeStartForm             = "start_form"
	TypeAskNextQuestion       = "ask_next_question"
	TypeFormComplete          = "form_complete"
	TypeValidationError       = "validation_error"
	TypeClarificationNeeded   = "clarification_needed"
)

// Action is one of FormStart, Ask, Complete, ValidationError, Clarification
// or Unknown. The set is closed.
type Action interface {
	// WireType is the kind tag the backend sent.
	WireType() string
	// Source is the protocol generation that encoded the action.
	Source() Encoding
	isAction()
}

// Header carries the fields every canonical action shares.
type Header struct {
	Type     string
	Encoding Encoding
}

// WireType implements Action.
func (h Header) WireType() string { return h.Type }

// Source implements Action.
func (h Header) Source() Encoding { return h.Encoding }

func (Header) isAction() {}

// FormStart activates a form.
type FormStart struct {
	Header
	FormType string
	// Form is the backend-supplied definition; nil when the encoding relies
	// on the static catalog.
	Form         *domain.FormDefinition
	NextQuestion string
}

// Ask prompts for the next field.
type Ask struct {
	Header
	Question    string
	FieldName   string
	FieldNumber int
	TotalFields int
	Options     []string
}

// Complete delivers the authoritative set of collected fields.
type Complete struct {
	Header
	FormType string
	Data     domain.CollectedData
	Form     *domain.FormDefinition
}

// ValidationError reports a rejected field value.
type ValidationError struct {
	Header
	Message       string
	RetryQuestion string
}

// Clarification asks the user to name a form.
type Clarification struct {
	Header
	Message string
}

// Unknown is any kind this build does not understand.
type Unknown struct {
	Header
	Message string
}
