// Package dispatch reduces a response's action list into session changes and
// timeline messages.
package dispatch

import (
	"fmt"

	"github.com/ashureev/intelliform/internal/action"
	"github.com/ashureev/intelliform/internal/domain"
)

// Catalog resolves static form definitions.
type Catalog interface {
	Lookup(formType string) (domain.FormDefinition, bool)
	Names() []string
}

// Note is a diagnostic produced while reducing.
type Note struct {
	Action  string
	Details string
}

// Outcome is the result of applying one action list.
type Outcome struct {
	Session domain.Session
	Drafts  []domain.Draft
	Notes   []Note
}

// Dispatcher applies canonical actions. It holds no per-session state and is
// safe for concurrent use.
type Dispatcher struct {
	catalog  Catalog
	examples []string
}

// universalExamples are forms the dynamic backend is known to handle beyond
// the static catalog.
var universalExamples = []string{
	"FSSAI Food License",
	"GST Registration",
	"Company Registration",
	"Trademark Registration",
}

// New returns a dispatcher resolving legacy forms through c.
func New(c Catalog) *Dispatcher {
	examples := append([]string(nil), universalExamples...)
	if c != nil {
		examples = append(examples, c.Names()...)
	}
	return &Dispatcher{catalog: c, examples: examples}
}

// Apply reduces actions in order. It is a pure function of its inputs: the
// passed session is not modified and no I/O or timers are involved.
func (d *Dispatcher) Apply(s domain.Session, actions []action.Action) Outcome {
	out := Outcome{Session: s}
	for _, a := range actions {
		d.apply(&out, a)
	}
	return out
}

func (d *Dispatcher) apply(out *Outcome, a action.Action) {
	switch act := a.(type) {
	case action.FormStart:
		d.startForm(out, act)
	case action.Ask:
		d.ask(out, act)
	case action.Complete:
		d.complete(out, act)
	case action.ValidationError:
		d.validationError(out, act)
	case action.Clarification:
		d.clarify(out, act)
	case action.Unknown:
		d.unknown(out, act.WireType(), act.Message)
	default:
		// A canonical type added without a reducer case.
		d.unknown(out, fmt.Sprintf("%T", a), "")
	}
}

func (d *Dispatcher) resolveForm(formType string, supplied *domain.FormDefinition, current *domain.FormDefinition) domain.FormDefinition {
	if supplied != nil {
		def := supplied.Clone()
		if def.Type == "" {
			def.Type = formType
		}
		return def
	}
	if current != nil && current.Type == formType {
		return current.Clone()
	}
	if def, ok := d.lookup(formType); ok {
		return def
	}
	return domain.FormDefinition{Type: formType}
}

func (d *Dispatcher) lookup(formType string) (domain.FormDefinition, bool) {
	if d.catalog == nil {
		return domain.FormDefinition{}, false
	}
	return d.catalog.Lookup(formType)
}

func (d *Dispatcher) startForm(out *Outcome, a action.FormStart) {
	def := d.resolveForm(a.FormType, a.Form, nil)
	if err := out.Session.StartForm(def); err != nil {
		out.Notes = append(out.Notes, Note{"Form Start Ignored", err.Error()})
		text := a.NextQuestion
		if text == "" {
			text = "I couldn't tell which form to start. Which form do you need help with?"
		}
		out.Drafts = append(out.Drafts, domain.AssistantDraft(text, encodingMeta(a.Source(), nil)))
		return
	}
	out.Notes = append(out.Notes, Note{"Form Started", fmt.Sprintf("%s (%s): %s", def.Type, a.Source(), def.DisplayName())})

	meta := encodingMeta(a.Source(), domain.Metadata{
		domain.MetaFormStarted: true,
		domain.MetaFormType:    def.Type,
		domain.MetaVerified:    def.Verified,
	})
	out.Drafts = append(out.Drafts, domain.AssistantDraft(renderFormStart(def, a.NextQuestion), meta))
}

func (d *Dispatcher) ask(out *Outcome, a action.Ask) {
	out.Notes = append(out.Notes, Note{"Question", fmt.Sprintf("field %q (%d/%d)", a.FieldName, a.FieldNumber, a.TotalFields)})

	meta := encodingMeta(a.Source(), domain.Metadata{
		domain.MetaFieldName: a.FieldName,
	})
	if a.FieldNumber > 0 {
		meta[domain.MetaFieldNumber] = a.FieldNumber
		meta[domain.MetaTotalFields] = a.TotalFields
	}
	if len(a.Options) > 0 {
		meta[domain.MetaOptions] = append([]string(nil), a.Options...)
	}
	out.Drafts = append(out.Drafts, domain.AssistantDraft(renderAsk(a), meta))
}

func (d *Dispatcher) complete(out *Outcome, a action.Complete) {
	formType := a.FormType
	if formType == "" {
		formType = out.Session.FormType()
	}

	next := out.Session
	def := d.resolveForm(formType, a.Form, next.Form())
	if def.Type != "" {
		_ = next.SetForm(def)
	}
	if err := next.Complete(def.Type, a.Data); err != nil {
		text := "The form was reported complete, but no collected information was received. Please continue answering the questions."
		if len(a.Data) > 0 {
			text = "The form was reported complete, but it did not name a form type. Please tell me which form you are filling in."
		}
		out.Notes = append(out.Notes, Note{"Form Complete Rejected", err.Error()})
		out.Drafts = append(out.Drafts, domain.AssistantDraft(text,
			encodingMeta(a.Source(), domain.Metadata{domain.MetaError: true}),
		))
		return
	}
	out.Session = next
	out.Notes = append(out.Notes, Note{"Form Complete", fmt.Sprintf("%s: %d fields collected", def.DisplayName(), len(a.Data))})

	meta := encodingMeta(a.Source(), domain.Metadata{
		domain.MetaFormComplete:   true,
		domain.MetaFormType:       def.Type,
		domain.MetaCanGeneratePDF: true,
		domain.MetaVerified:       def.Verified,
	})
	out.Drafts = append(out.Drafts, domain.AssistantDraft(renderComplete(def, next.CollectedData()), meta))
}

func (d *Dispatcher) validationError(out *Outcome, a action.ValidationError) {
	out.Notes = append(out.Notes, Note{"Validation Error", a.Message})
	out.Drafts = append(out.Drafts, domain.AssistantDraft(renderValidation(a), domain.Metadata{
		domain.MetaValidationError: true,
		domain.MetaRetryRequired:   true,
	}))
}

func (d *Dispatcher) clarify(out *Outcome, a action.Clarification) {
	out.Notes = append(out.Notes, Note{"Clarification Required", a.Message})
	out.Drafts = append(out.Drafts, domain.AssistantDraft(renderClarification(a.Message, d.examples), domain.Metadata{
		domain.MetaClarification: true,
	}))
}

func (d *Dispatcher) unknown(out *Outcome, wireType, message string) {
	out.Notes = append(out.Notes, Note{"Unknown Action", "type: " + wireType})
	if message == "" {
		return
	}
	out.Drafts = append(out.Drafts, domain.AssistantDraft(message, domain.Metadata{
		domain.MetaUnknownAction: true,
		domain.MetaActionType:    wireType,
	}))
}

func encodingMeta(enc action.Encoding, meta domain.Metadata) domain.Metadata {
	if meta == nil {
		meta = domain.Metadata{}
	}
	switch enc {
	case action.EncodingUniversal:
		meta[domain.MetaUniversalForm] = true
	case action.EncodingLegacy:
		meta[domain.MetaLegacyForm] = true
	}
	return meta
}
