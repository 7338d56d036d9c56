package domain

import (
	"maps"
	"time"
)

// Role identifies the author of a timeline message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Metadata keys understood by front ends.
const (
	MetaIntent          = "intent"
	MetaFormType        = "formType"
	MetaConfidence      = "confidence"
	MetaVerified        = "verified"
	MetaDegraded        = "degraded"
	MetaFormStarted     = "formStarted"
	MetaFormComplete    = "formComplete"
	MetaCanGeneratePDF  = "canGeneratePDF"
	MetaUniversalForm   = "universalForm"
	MetaLegacyForm      = "legacyForm"
	MetaFieldName       = "fieldName"
	MetaFieldNumber     = "fieldNumber"
	MetaTotalFields     = "totalFields"
	MetaOptions         = "options"
	MetaValidationError = "validationError"
	MetaRetryRequired   = "retryRequired"
	MetaClarification   = "clarificationNeeded"
	MetaUnknownAction   = "unknownAction"
	MetaActionType      = "actionType"
	MetaPDFGenerated    = "pdfGenerated"
	MetaFilename        = "filename"
	MetaDownloadURL     = "downloadUrl"
	MetaPreviewURL      = "previewUrl"
	MetaError           = "error"
)

// Metadata is a free-form bag of per-message UI hints.
type Metadata map[string]any

// Bool reports whether key is set to true.
func (m Metadata) Bool(key string) bool {
	v, ok := m[key].(bool)
	return ok && v
}

// Message is one entry in the conversation timeline.
type Message struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// Clone returns a copy with its own metadata map.
func (m Message) Clone() Message {
	m.Metadata = maps.Clone(m.Metadata)
	return m
}

// Draft is a message that has not been placed on a timeline yet.
type Draft struct {
	Role     Role
	Content  string
	Metadata Metadata
}

// AssistantDraft builds an assistant draft.
func AssistantDraft(content string, meta Metadata) Draft {
	return Draft{Role: RoleAssistant, Content: content, Metadata: meta}
}

// DiagnosticEntry is one operational event kept for observability.
type DiagnosticEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
}
