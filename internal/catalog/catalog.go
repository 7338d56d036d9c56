// Package catalog holds the static, trusted set of form definitions.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/ashureev/intelliform/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed forms.yaml
var embeddedForms []byte

// Catalog is a read-only index of form definitions keyed by type.
type Catalog struct {
	forms map[string]domain.FormDefinition
	order []string
}

type document struct {
	Forms []domain.FormDefinition `yaml:"forms"`
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(embeddedForms)
	if err != nil {
		panic("catalog: invalid embedded forms: " + err.Error())
	}
	return c
}

// Load reads a catalog from a YAML file. An empty path yields Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{forms: make(map[string]domain.FormDefinition, len(doc.Forms))}
	for _, f := range doc.Forms {
		f.Type = strings.TrimSpace(f.Type)
		if f.Type == "" {
			return nil, errors.New("catalog entry without type")
		}
		if _, dup := c.forms[f.Type]; dup {
			return nil, fmt.Errorf("duplicate catalog entry %q", f.Type)
		}
		f.Universal = false
		if f.TotalFields == 0 {
			f.TotalFields = len(f.Fields)
		}
		c.forms[f.Type] = f
		c.order = append(c.order, f.Type)
	}
	return c, nil
}

// Lookup returns a copy of the definition for formType.
func (c *Catalog) Lookup(formType string) (domain.FormDefinition, bool) {
	if c == nil {
		return domain.FormDefinition{}, false
	}
	f, ok := c.forms[formType]
	if !ok {
		return domain.FormDefinition{}, false
	}
	return f.Clone(), true
}

// List returns every definition in file order.
func (c *Catalog) List() []domain.FormDefinition {
	if c == nil {
		return nil
	}
	out := make([]domain.FormDefinition, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.forms[t].Clone())
	}
	return out
}

// Names returns display names in file order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.order))
	for _, t := range c.order {
		names = append(names, c.forms[t].DisplayName())
	}
	return slices.Clip(names)
}
