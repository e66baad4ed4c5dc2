package metamodel

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/vmihailenco/tagparser/v2"
)

// Class marker types. A struct declares itself a metadata class with a field of one of
// these types, conventionally blank:
//
//	type Order struct {
//		_ metamodel.Entity `meta:"name:sales_Order,store:main"`
//		...
//	}
type (
	Entity           struct{}
	Embeddable       struct{}
	MappedSuperclass struct{}
	ModelObject      struct{}
)

var (
	entityMarker           = reflect.TypeOf(Entity{})
	embeddableMarker       = reflect.TypeOf(Embeddable{})
	mappedSuperclassMarker = reflect.TypeOf(MappedSuperclass{})
	modelObjectMarker      = reflect.TypeOf(ModelObject{})
)

func isMarkerType(t reflect.Type) bool {
	switch t {
	case entityMarker, embeddableMarker, mappedSuperclassMarker, modelObjectMarker:
		return true
	}
	return false
}

// Tag keys
const (
	tagPersist  = "persist"
	tagMeta     = "meta"
	tagValidate = "validate"
	tagExt      = "ext"
)

// ClassMarkers are the class-level facts declared by marker fields
type ClassMarkers struct {
	Entity           bool
	Embeddable       bool
	MappedSuperclass bool
	ModelObject      bool
	Name             string
	Store            string
}

// IsMetadataClass reports whether any class marker is present
func (m ClassMarkers) IsMetadataClass() bool {
	return m.Entity || m.Embeddable || m.MappedSuperclass || m.ModelObject
}

// Persistent reports whether the class is mapped by the persistence layer
func (m ClassMarkers) Persistent() bool {
	return m.Entity || m.Embeddable || m.MappedSuperclass
}

// ElementKind distinguishes fields from accessor methods
type ElementKind int

const (
	ElementField ElementKind = iota
	ElementAccessor
)

func (k ElementKind) String() string {
	if k == ElementAccessor {
		return "accessor"
	}
	return "field"
}

// Element is a declared field or accessor of a class
type Element struct {
	Kind     ElementKind
	Name     string
	Owner    reflect.Type
	Type     reflect.Type
	Tag      reflect.StructTag
	Exported bool

	// NumIn and NumOut count accessor parameters (without the receiver) and results
	NumIn  int
	NumOut int
}

// ColumnMarker is the `persist:"column"` marker
type ColumnMarker struct {
	Nullable bool
	Length   int
}

// RelationMarker is one of the relational markers
type RelationMarker struct {
	Cardinality Cardinality
	Optional    bool
	MappedBy    string
	Target      string
}

// ModelMarker is the model-property marker (`meta` tag)
type ModelMarker struct {
	Mandatory    bool
	Datatype     string
	Related      []string
	Composition  bool
	ReadOnly     bool
	NumberFormat string
}

// Markers are the element-level facts declared by tags
type Markers struct {
	Column      *ColumnMarker
	Relation    *RelationMarker
	Model       *ModelMarker
	ID          bool
	EmbeddedID  bool
	Embedded    bool
	Lob         bool
	Temporal    string
	Constraints []Constraint
	Extensions  map[string]string
}

// Persistent reports whether the element carries any persistence marker
func (m Markers) Persistent() bool {
	return m.Column != nil || m.Relation != nil || m.ID || m.EmbeddedID || m.Embedded
}

// IsProperty reports whether the element is recognised as a property of its class
func (m Markers) IsProperty() bool {
	return m.Persistent() || m.Model != nil
}

// PrimaryKey reports whether the element is the class identifier
func (m Markers) PrimaryKey() bool {
	return m.ID || m.EmbeddedID
}

// Constraint returns the first constraint of the given kind
func (m Markers) Constraint(kind ConstraintKind) (Constraint, bool) {
	for _, c := range m.Constraints {
		if c.Kind == kind {
			return c, true
		}
	}
	return Constraint{}, false
}

// MarkerReader reads declarative metadata from Go types. The default implementation
// reads struct tags; an alternative can serve generated static tables instead.
type MarkerReader interface {
	ClassMarkers(typ reflect.Type) (ClassMarkers, error)
	Superclass(typ reflect.Type) reflect.Type
	Fields(typ reflect.Type) []Element
	Accessors(typ reflect.Type) ([]Element, error)
	Markers(el Element) (Markers, error)
}

// TagReader is the struct-tag MarkerReader. Accessors come from the catalog's
// registration table.
type TagReader struct {
	catalog *TypeCatalog
}

// NewTagReader creates a tag reader backed by the catalog
func NewTagReader(catalog *TypeCatalog) *TagReader {
	return &TagReader{catalog: catalog}
}

// ClassMarkers reads the marker fields declared directly on typ
func (r *TagReader) ClassMarkers(typ reflect.Type) (ClassMarkers, error) {
	var m ClassMarkers
	if typ.Kind() != reflect.Struct {
		return m, nil
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !isMarkerType(f.Type) {
			continue
		}
		switch f.Type {
		case entityMarker:
			m.Entity = true
		case embeddableMarker:
			m.Embeddable = true
		case mappedSuperclassMarker:
			m.MappedSuperclass = true
		case modelObjectMarker:
			m.ModelObject = true
		}
		raw, ok := f.Tag.Lookup(tagMeta)
		if !ok {
			continue
		}
		tag := tagparser.Parse(raw)
		if v, ok := tag.Options["name"]; ok {
			m.Name = v
		}
		if v, ok := tag.Options["store"]; ok {
			if v == "" {
				return m, fmt.Errorf("%w: empty store name on %s", ErrUnreadableAnnotation, typ)
			}
			m.Store = v
		}
	}
	return m, nil
}

// Superclass returns the first embedded struct that is not a marker, or nil
func (r *TagReader) Superclass(typ reflect.Type) reflect.Type {
	if typ.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && !isMarkerType(ft) {
			return ft
		}
	}
	return nil
}

// Fields returns the named fields declared directly on typ
func (r *TagReader) Fields(typ reflect.Type) []Element {
	var out []Element
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.Anonymous || f.Name == "_" || isMarkerType(f.Type) {
			continue
		}
		out = append(out, Element{
			Kind:     ElementField,
			Name:     f.Name,
			Owner:    typ,
			Type:     f.Type,
			Tag:      f.Tag,
			Exported: f.IsExported(),
		})
	}
	return out
}

// Accessors returns the accessor methods registered for typ in declaration order
func (r *TagReader) Accessors(typ reflect.Type) ([]Element, error) {
	decls := r.catalog.accessorsOf(typ)
	out := make([]Element, 0, len(decls))
	for _, decl := range decls {
		m, ok := reflect.PointerTo(typ).MethodByName(decl.method)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no method %s", ErrUnsupportedPropertyShape, typ, decl.method)
		}
		el := Element{
			Kind:     ElementAccessor,
			Name:     decl.method,
			Owner:    typ,
			Tag:      decl.tag,
			Exported: true,
			NumIn:    m.Type.NumIn() - 1,
			NumOut:   m.Type.NumOut(),
		}
		if el.NumOut > 0 {
			el.Type = m.Type.Out(0)
		}
		out = append(out, el)
	}
	return out, nil
}

// Markers parses the persist, meta, validate and ext tags of an element
func (r *TagReader) Markers(el Element) (Markers, error) {
	m := Markers{Extensions: make(map[string]string)}

	if raw, ok := el.Tag.Lookup(tagPersist); ok {
		if err := parsePersist(&m, raw); err != nil {
			return m, fmt.Errorf("%s %s.%s: %w", el.Kind, el.Owner.Name(), el.Name, err)
		}
	}
	if raw, ok := el.Tag.Lookup(tagMeta); ok {
		model, err := parseModel(raw)
		if err != nil {
			return m, fmt.Errorf("%s %s.%s: %w", el.Kind, el.Owner.Name(), el.Name, err)
		}
		m.Model = model
	}
	if raw, ok := el.Tag.Lookup(tagValidate); ok {
		constraints, err := parseValidate(raw)
		if err != nil {
			return m, fmt.Errorf("%s %s.%s: %w", el.Kind, el.Owner.Name(), el.Name, err)
		}
		m.Constraints = constraints
	}
	if raw, ok := el.Tag.Lookup(tagExt); ok {
		for k, v := range tagOptions(raw) {
			m.Extensions[k] = v
		}
	}
	return m, nil
}

// tagOptions flattens a parsed tag into key/value pairs; the leading name becomes a
// key with an empty value
func tagOptions(raw string) map[string]string {
	tag := tagparser.Parse(raw)
	out := make(map[string]string, len(tag.Options)+1)
	if tag.Name != "" {
		out[tag.Name] = ""
	}
	for k, v := range tag.Options {
		out[k] = v
	}
	return out
}

// relationOrder is the precedence used when several relational markers are present
var relationOrder = []struct {
	key         string
	cardinality Cardinality
}{
	{"one_to_one", CardinalityOneToOne},
	{"one_to_many", CardinalityOneToMany},
	{"many_to_one", CardinalityManyToOne},
	{"many_to_many", CardinalityManyToMany},
}

func parsePersist(m *Markers, raw string) error {
	opts := tagOptions(raw)

	_, m.ID = opts["id"]
	_, m.EmbeddedID = opts["embedded_id"]
	_, m.Embedded = opts["embedded"]
	_, m.Lob = opts["lob"]

	if _, ok := opts["column"]; ok {
		col := &ColumnMarker{Nullable: true}
		if v, ok := opts["nullable"]; ok {
			b, err := parseBool("nullable", v)
			if err != nil {
				return err
			}
			col.Nullable = b
		}
		if v, ok := opts["length"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("%w: length %q is not a non-negative integer", ErrUnreadableAnnotation, v)
			}
			col.Length = n
		}
		m.Column = col
	}

	for _, rel := range relationOrder {
		if _, ok := opts[rel.key]; !ok {
			continue
		}
		marker := &RelationMarker{
			Cardinality: rel.cardinality,
			Optional:    true,
			MappedBy:    opts["mapped_by"],
			Target:      opts["target"],
		}
		if marker.MappedBy == "" {
			marker.MappedBy = opts["inverse"]
		}
		if v, ok := opts["optional"]; ok {
			b, err := parseBool("optional", v)
			if err != nil {
				return err
			}
			marker.Optional = b
		}
		m.Relation = marker
		break
	}

	if v, ok := opts["temporal"]; ok {
		switch v {
		case "date", "time", "timestamp":
			m.Temporal = v
		default:
			return fmt.Errorf("%w: temporal %q must be date, time or timestamp", ErrUnreadableAnnotation, v)
		}
	}
	return nil
}

func parseModel(raw string) (*ModelMarker, error) {
	opts := tagOptions(raw)
	model := &ModelMarker{
		Datatype:     opts["datatype"],
		NumberFormat: opts["number_format"],
	}
	_, model.Composition = opts["composition"]
	_, model.ReadOnly = opts["readonly"]
	if v, ok := opts["mandatory"]; ok {
		if v == "" {
			model.Mandatory = true
		} else {
			b, err := parseBool("mandatory", v)
			if err != nil {
				return nil, err
			}
			model.Mandatory = b
		}
	}
	if v := opts["related"]; v != "" {
		model.Related = strings.Split(v, "|")
	}
	return model, nil
}

func parseValidate(raw string) ([]Constraint, error) {
	opts := tagOptions(raw)
	message, hasMessage := opts["message"]
	delete(opts, "message")

	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	constraints := make([]Constraint, 0, len(keys))
	for _, k := range keys {
		c, err := parseConstraint(k, opts[k])
		if err != nil {
			return nil, err
		}
		if c.Kind == ConstraintNotNull && hasMessage {
			c.Message = message
		}
		constraints = append(constraints, c)
	}
	sort.SliceStable(constraints, func(i, j int) bool {
		return constraints[i].Kind < constraints[j].Kind
	})
	return constraints, nil
}

func parseBool(name, v string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s %q is not a boolean", ErrUnreadableAnnotation, name, v)
	}
	return b, nil
}

// propertyName derives a property name from a Go identifier:
// "Total" -> "total", "ID" -> "id", "URLPath" -> "urlPath", "customerID" -> "customerID"
func propertyName(goName string) string {
	runes := []rune(goName)
	if len(runes) == 0 || unicode.IsLower(runes[0]) {
		return goName
	}
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n > 1 && n < len(runes) {
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// accessorPropertyName strips a Get prefix before deriving the name
func accessorPropertyName(method string) string {
	if rest, ok := strings.CutPrefix(method, "Get"); ok && rest != "" && unicode.IsUpper([]rune(rest)[0]) {
		return propertyName(rest)
	}
	return propertyName(method)
}

// setterNames lists the setter method names that make a field or accessor writable
func setterNames(goName string) []string {
	names := []string{"Set" + capitalize(goName)}
	if rest, ok := strings.CutPrefix(goName, "Is"); ok && rest != "" && unicode.IsUpper([]rune(rest)[0]) {
		names = append(names, "Set"+rest)
	}
	if rest, ok := strings.CutPrefix(goName, "is"); ok && rest != "" && unicode.IsUpper([]rune(rest)[0]) {
		names = append(names, "Set"+rest)
	}
	if rest, ok := strings.CutPrefix(goName, "Get"); ok && rest != "" && unicode.IsUpper([]rune(rest)[0]) {
		names = []string{"Set" + rest}
	}
	return names
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
