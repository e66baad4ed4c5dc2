// Package export renders a loaded metadata session as a serializable snapshot and
// publishes it to redis.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/metagraph/pkg/metamodel"
)

// Format is an output encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat converts a flag value to a Format
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML:
		return Format(s), nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (use json or yaml)", s)
	}
}

// Document is a snapshot of one session
type Document struct {
	ID          uuid.UUID `json:"id" yaml:"id"`
	SessionID   uuid.UUID `json:"session_id" yaml:"session_id"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Classes     []Class   `json:"classes" yaml:"classes"`
}

// Class is the snapshot of a class node
type Class struct {
	Name       string     `json:"name" yaml:"name"`
	Type       string     `json:"type" yaml:"type"`
	Store      string     `json:"store" yaml:"store"`
	Ancestors  []string   `json:"ancestors,omitempty" yaml:"ancestors,omitempty"`
	PrimaryKey string     `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Properties []Property `json:"properties" yaml:"properties"`
}

// Property is the snapshot of a property node
type Property struct {
	Name        string            `json:"name" yaml:"name"`
	DeclaredBy  string            `json:"declared_by,omitempty" yaml:"declared_by,omitempty"`
	Kind        string            `json:"kind" yaml:"kind"`
	Cardinality string            `json:"cardinality" yaml:"cardinality"`
	Range       string            `json:"range" yaml:"range"`
	Ordered     bool              `json:"ordered,omitempty" yaml:"ordered,omitempty"`
	Mandatory   bool              `json:"mandatory,omitempty" yaml:"mandatory,omitempty"`
	ReadOnly    bool              `json:"read_only,omitempty" yaml:"read_only,omitempty"`
	Inverse     string            `json:"inverse,omitempty" yaml:"inverse,omitempty"`
	Store       string            `json:"store" yaml:"store"`
	Annotations map[string]any    `json:"annotations,omitempty" yaml:"annotations,omitempty"`
	Extensions  map[string]string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Constraints []Constraint      `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// Constraint is the snapshot of a validation constraint
type Constraint struct {
	Kind   string   `json:"kind" yaml:"kind"`
	Value  string   `json:"value,omitempty" yaml:"value,omitempty"`
	Groups []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Build snapshots every class of the session in registration order
func Build(session *metamodel.Session) (*Document, error) {
	doc := &Document{
		ID:          uuid.New(),
		SessionID:   session.ID(),
		GeneratedAt: session.LoadedAt().UTC(),
		Classes:     make([]Class, 0, session.Count()),
	}

	for _, c := range session.Classes() {
		class := Class{
			Name:       c.Name(),
			Type:       c.Type().String(),
			Properties: make([]Property, 0, len(c.Properties())),
		}
		if c.Store() != nil {
			class.Store = c.Store().Name()
		}
		for _, a := range c.Ancestors() {
			class.Ancestors = append(class.Ancestors, a.Name())
		}
		if pk, ok := c.PrimaryKey(); ok {
			class.PrimaryKey = pk.Name()
		}

		for _, p := range c.Properties() {
			prop, err := buildProperty(c, p)
			if err != nil {
				return nil, err
			}
			class.Properties = append(class.Properties, prop)
		}
		doc.Classes = append(doc.Classes, class)
	}
	return doc, nil
}

func buildProperty(c *metamodel.ClassNode, p *metamodel.PropertyNode) (Property, error) {
	prop := Property{
		Name:        p.Name(),
		Kind:        p.Kind().String(),
		Cardinality: p.Cardinality().String(),
		Mandatory:   p.Mandatory(),
		ReadOnly:    p.ReadOnly(),
	}
	if !c.IsOwn(p) {
		prop.DeclaredBy = p.Domain().Name()
	}
	if r := p.Range(); r != nil {
		prop.Range = r.String()
		prop.Ordered = r.Ordered()
	}
	if inv := p.Inverse(); inv != nil {
		prop.Inverse = inv.String()
	}
	if p.Store() != nil {
		prop.Store = p.Store().Name()
	}

	if annotations := p.Annotations(); len(annotations) > 0 {
		prop.Annotations = make(map[string]any, len(annotations))
		for k, v := range annotations {
			prop.Annotations[k.String()] = v
		}
	}
	if ext := p.Extensions(); len(ext) > 0 {
		prop.Extensions = ext
	}

	for _, con := range p.Constraints() {
		groups, err := con.Groups()
		if err != nil {
			return prop, fmt.Errorf("property %s: %w", p, err)
		}
		prop.Constraints = append(prop.Constraints, Constraint{
			Kind:   con.Kind.String(),
			Value:  con.Value,
			Groups: groups,
		})
	}
	return prop, nil
}

// Write encodes the document in the given format
func Write(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
	return nil
}

// ClassNames returns the class names of the document in sorted order
func (d *Document) ClassNames() []string {
	names := make([]string, 0, len(d.Classes))
	for _, c := range d.Classes {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}
