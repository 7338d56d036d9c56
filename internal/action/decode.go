package action

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ashureev/intelliform/internal/domain"
)

// envelope is the union of every field either generation may send.
type envelope struct {
	Type          string                     `json:"type"`
	FormType      string                     `json:"formType"`
	FormDetails   *universalDetails          `json:"formDetails"`
	NextQuestion  string                     `json:"nextQuestion"`
	Question      string                     `json:"question"`
	FieldName     string                     `json:"fieldName"`
	FieldType     string                     `json:"fieldType"`
	FieldNumber   flexInt                    `json:"fieldNumber"`
	TotalFields   flexInt                    `json:"totalFields"`
	Options       []string                   `json:"options"`
	FormData      map[string]json.RawMessage `json:"formData"`
	Message       string                     `json:"message"`
	RetryQuestion string                     `json:"retry_question"`
}

type universalDetails struct {
	Name            string   `json:"name"`
	Authority       string   `json:"authority"`
	FormNumber      string   `json:"form_number"`
	TotalFields     flexInt  `json:"total_fields"`
	ProcessingTime  string   `json:"processing_time"`
	Fees            string   `json:"fees"`
	DocumentsNeeded []string `json:"documents_needed"`
	Fields          []string `json:"fields"`
	Eligibility     string   `json:"eligibility"`
	Verified        bool     `json:"verified"`
}

func (d *universalDetails) definition(formType string) *domain.FormDefinition {
	if d == nil {
		return nil
	}
	return &domain.FormDefinition{
		Type:           formType,
		Name:           d.Name,
		Authority:      d.Authority,
		FormNumber:     d.FormNumber,
		Fields:         d.Fields,
		Documents:      d.DocumentsNeeded,
		Fee:            d.Fees,
		ProcessingTime: d.ProcessingTime,
		Eligibility:    d.Eligibility,
		TotalFields:    int(d.TotalFields),
		Universal:      true,
		Verified:       d.Verified,
	}
}

// decoder normalizes one wire generation. It reports false for kinds it does
// not own.
type decoder func(env envelope) (Action, bool)

// decoders are tried in order; the first that claims a kind wins.
var decoders = []decoder{decodeUniversal, decodeLegacy, decodeShared}

// UnreadableMessage is shown for actions whose payload could not be decoded
// and that carried no message of their own.
const UnreadableMessage = "I received an update from the assistant that I could not process. Please try again or rephrase your answer."

// TypeMalformed tags payloads that are not JSON objects.
const TypeMalformed = "malformed"

// header is read first so the kind and message survive a payload whose
// other fields do not decode.
type header struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// flexInt accepts JSON numbers and numeric strings. Any other value decodes
// as zero instead of failing the whole action.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	v := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if i, err := strconv.Atoi(v); err == nil {
		*n = flexInt(i)
		return nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*n = flexInt(int(f))
		return nil
	}
	*n = 0
	return nil
}

// Decode normalizes one raw action. It never fails: payloads that cannot be
// parsed or whose kind is not recognized become Unknown. Unparsable payloads
// always carry a message so the failure is visible.
func Decode(raw json.RawMessage) Action {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return Unknown{
			Header:  Header{Type: TypeMalformed, Encoding: EncodingShared},
			Message: UnreadableMessage,
		}
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		msg := h.Message
		if msg == "" {
			msg = UnreadableMessage
		}
		return Unknown{
			Header:  Header{Type: h.Type, Encoding: EncodingShared},
			Message: msg,
		}
	}
	for _, dec := range decoders {
		if a, ok := dec(env); ok {
			return a
		}
	}
	return Unknown{
		Header:  Header{Type: env.Type, Encoding: EncodingShared},
		Message: env.Message,
	}
}

// DecodeAll normalizes a list, preserving order.
func DecodeAll(raws []json.RawMessage) []Action {
	out := make([]Action, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Decode(raw))
	}
	return out
}

func decodeUniversal(env envelope) (Action, bool) {
	h := Header{Type: env.Type, Encoding: EncodingUniversal}
	switch env.Type {
	case TypeStartUniversalForm:
		return FormStart{
			Header:       h,
			FormType:     env.FormType,
			Form:         env.FormDetails.definition(env.FormType),
			NextQuestion: env.NextQuestion,
		}, true
	case TypeAskUniversalQuestion:
		return Ask{
			Header:      h,
			Question:    env.Question,
			FieldName:   env.FieldName,
			FieldNumber: int(env.FieldNumber),
			TotalFields: int(env.TotalFields),
		}, true
	case TypeUniversalFormComplete:
		return Complete{
			Header:   h,
			FormType: env.FormType,
			Data:     collected(env.FormData),
			Form:     env.FormDetails.definition(env.FormType),
		}, true
	}
	return nil, false
}

func decodeLegacy(env envelope) (Action, bool) {
	h := Header{Type: env.Type, Encoding: EncodingLegacy}
	switch env.Type {
	case TypeStartForm:
		return FormStart{
			Header:       h,
			FormType:     env.FormType,
			NextQuestion: env.NextQuestion,
		}, true
	case TypeAskNextQuestion:
		return Ask{
			Header:    h,
			Question:  env.Question,
			FieldName: env.FieldType,
			Options:   env.Options,
		}, true
	case TypeFormComplete:
		return Complete{
			Header:   h,
			FormType: env.FormType,
			Data:     collected(env.FormData),
		}, true
	}
	return nil, false
}

func decodeShared(env envelope) (Action, bool) {
	h := Header{Type: env.Type, Encoding: EncodingShared}
	switch env.Type {
	case TypeValidationError:
		return ValidationError{Header: h, Message: env.Message, RetryQuestion: env.RetryQuestion}, true
	case TypeClarificationNeeded:
		return Clarification{Header: h, Message: env.Message}, true
	}
	return nil, false
}

// collected flattens form data to strings; backends sometimes send numbers
// or booleans for answered fields.
func collected(in map[string]json.RawMessage) domain.CollectedData {
	if len(in) == 0 {
		return nil
	}
	out := make(domain.CollectedData, len(in))
	for k, raw := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		var s string
		switch {
		case json.Unmarshal(raw, &s) == nil:
			out[k] = s
		case string(raw) == "null":
			out[k] = ""
		default:
			out[k] = string(raw)
		}
	}
	return out
}
