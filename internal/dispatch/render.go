package dispatch

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/intelliform/internal/action"
	"github.com/ashureev/intelliform/internal/domain"
)

func renderFormStart(def domain.FormDefinition, nextQuestion string) string {
	if def.Authority == "" && def.Name == "" {
		if nextQuestion != "" {
			return nextQuestion
		}
		return fmt.Sprintf("Starting the %s application.", def.DisplayName())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s Application Started**\n\n", def.DisplayName())
	writeField(&b, "Authority", def.Authority)
	writeField(&b, "Form Number", def.FormNumber)
	if n := def.FieldCount(); n > 0 {
		writeField(&b, "Total Fields", fmt.Sprint(n))
	}
	writeField(&b, "Processing Time", def.ProcessingTime)
	writeField(&b, "Fees", def.Fee)
	if len(def.Documents) > 0 {
		b.WriteString("\n**Required Documents:**\n")
		writeBullets(&b, def.Documents)
	}
	if nextQuestion != "" {
		b.WriteString("\nLet's start collecting the required information:\n\n")
		b.WriteString(nextQuestion)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderAsk(a action.Ask) string {
	var b strings.Builder
	if a.FieldNumber > 0 && a.TotalFields > 0 {
		fmt.Fprintf(&b, "**Progress: %d/%d**\n\n", a.FieldNumber, a.TotalFields)
	}
	b.WriteString(a.Question)
	if len(a.Options) > 0 {
		b.WriteString("\n\nOptions:")
		for i, opt := range a.Options {
			fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
		}
	}
	return b.String()
}

func renderComplete(def domain.FormDefinition, data domain.CollectedData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s Application Completed!**\n\n", def.DisplayName())
	b.WriteString("I have collected all the required information for your application.\n\n")
	b.WriteString("**Summary of Information Collected:**\n")
	for _, k := range data.Keys() {
		fmt.Fprintf(&b, "- **%s:** %s\n", humanize(k), data[k])
	}

	b.WriteString("\n**Next Steps:**\n")
	b.WriteString("1. **Generate PDF** - create a government-ready form\n")
	b.WriteString("2. **Review Information** - check every detail in the document\n")
	if def.Authority != "" {
		fmt.Fprintf(&b, "3. **Print & Submit** - take the PDF to %s\n", def.Authority)
	} else {
		b.WriteString("3. **Print & Submit** - take the PDF to the respective government office\n")
	}
	if len(def.Documents) > 0 {
		b.WriteString("\n**Required Documents to Carry:**\n")
		writeBullets(&b, def.Documents)
	}
	if def.Fee != "" || def.ProcessingTime != "" || def.FormNumber != "" {
		b.WriteString("\n**Processing Information:**\n")
		writeBulletField(&b, "Fees", def.Fee)
		writeBulletField(&b, "Processing Time", def.ProcessingTime)
		writeBulletField(&b, "Form Number", def.FormNumber)
	}
	b.WriteString("\nWould you like me to generate the PDF now?")
	return b.String()
}

func renderValidation(a action.ValidationError) string {
	retry := a.RetryQuestion
	if retry == "" {
		retry = "Please provide the correct information."
	}
	return fmt.Sprintf("**Input Validation Issue**\n\n%s\n\n%s", a.Message, retry)
}

func renderClarification(message string, examples []string) string {
	var b strings.Builder
	b.WriteString("**Need More Information**\n\n")
	if message != "" {
		b.WriteString(message)
		b.WriteString("\n\n")
	}
	b.WriteString("**I can help you with government forms like:**\n")
	writeBullets(&b, examples)
	b.WriteString("- And many more!\n\nJust tell me which specific form or certificate you need.")
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "**%s:** %s\n", label, value)
}

func writeBulletField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- **%s:** %s\n", label, value)
}

func writeBullets(b *strings.Builder, items []string) {
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

// humanize turns snake_case field names into title case labels.
func humanize(field string) string {
	words := strings.Fields(strings.ReplaceAll(field, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
