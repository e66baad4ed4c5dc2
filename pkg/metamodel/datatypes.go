package metamodel

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Datatype describes a scalar value kind
type Datatype interface {
	Name() string
	GoType() reflect.Type
}

type basicDatatype struct {
	name string
	typ  reflect.Type
}

func (d *basicDatatype) Name() string         { return d.name }
func (d *basicDatatype) GoType() reflect.Type { return d.typ }

// NewDatatype creates a datatype with the given name and Go type
func NewDatatype(name string, typ reflect.Type) Datatype {
	return &basicDatatype{name: name, typ: typ}
}

// AdaptiveNumberDatatype is a numeric datatype with a property-specific display format
type AdaptiveNumberDatatype struct {
	Base   Datatype
	Format string
}

func (d *AdaptiveNumberDatatype) Name() string         { return d.Base.Name() }
func (d *AdaptiveNumberDatatype) GoType() reflect.Type { return d.Base.GoType() }

// DatatypeRegistry maps Go types and names to datatypes.
// Lookups return ok=false instead of failing.
type DatatypeRegistry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]Datatype
	byName map[string]Datatype
}

// NewDatatypeRegistry creates a registry preloaded with the built-in datatypes
func NewDatatypeRegistry() *DatatypeRegistry {
	r := &DatatypeRegistry{
		byType: make(map[reflect.Type]Datatype),
		byName: make(map[string]Datatype),
	}

	r.Register("string", reflect.TypeOf(""))
	r.Register("boolean", reflect.TypeOf(false))
	r.Register("int", reflect.TypeOf(int(0)))
	r.Register("int8", reflect.TypeOf(int8(0)))
	r.Register("int16", reflect.TypeOf(int16(0)))
	r.Register("int32", reflect.TypeOf(int32(0)))
	r.Register("long", reflect.TypeOf(int64(0)))
	r.Register("uint", reflect.TypeOf(uint(0)))
	r.Register("uint8", reflect.TypeOf(uint8(0)))
	r.Register("uint16", reflect.TypeOf(uint16(0)))
	r.Register("uint32", reflect.TypeOf(uint32(0)))
	r.Register("uint64", reflect.TypeOf(uint64(0)))
	r.Register("float", reflect.TypeOf(float32(0)))
	r.Register("double", reflect.TypeOf(float64(0)))
	r.Register("dateTime", reflect.TypeOf(time.Time{}))
	r.Register("duration", reflect.TypeOf(time.Duration(0)))
	r.Register("byteArray", reflect.TypeOf([]byte(nil)))
	r.Register("uuid", reflect.TypeOf(uuid.UUID{}))
	r.Register("json", reflect.TypeOf(json.RawMessage(nil)))

	// Name-only datatypes used by temporal overrides and explicit datatype markers
	r.RegisterName(NewDatatype("date", reflect.TypeOf(time.Time{})))
	r.RegisterName(NewDatatype("time", reflect.TypeOf(time.Time{})))
	r.RegisterName(NewDatatype("decimal", reflect.TypeOf(float64(0))))

	return r
}

// Register adds a datatype keyed both by name and by Go type
func (r *DatatypeRegistry) Register(name string, typ reflect.Type) Datatype {
	dt := NewDatatype(name, typ)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[typ] = dt
	r.byName[name] = dt
	return dt
}

// RegisterName adds a datatype reachable only by name
func (r *DatatypeRegistry) RegisterName(dt Datatype) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[dt.Name()] = dt
}

// Get returns the datatype registered under name
func (r *DatatypeRegistry) Get(name string) (Datatype, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dt, ok := r.byName[name]
	return dt, ok
}

// Find returns the datatype registered for exactly this Go type
func (r *DatatypeRegistry) Find(typ reflect.Type) (Datatype, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dt, ok := r.byType[typ]
	return dt, ok
}

// FindByKind returns the datatype of the predeclared type sharing typ's kind.
// Named scalar types such as `type Code string` resolve through it.
func (r *DatatypeRegistry) FindByKind(typ reflect.Type) (Datatype, bool) {
	base, ok := kindTypes[typ.Kind()]
	if !ok {
		return nil, false
	}
	return r.Find(base)
}

var kindTypes = map[reflect.Kind]reflect.Type{
	reflect.String:  reflect.TypeOf(""),
	reflect.Bool:    reflect.TypeOf(false),
	reflect.Int:     reflect.TypeOf(int(0)),
	reflect.Int8:    reflect.TypeOf(int8(0)),
	reflect.Int16:   reflect.TypeOf(int16(0)),
	reflect.Int32:   reflect.TypeOf(int32(0)),
	reflect.Int64:   reflect.TypeOf(int64(0)),
	reflect.Uint:    reflect.TypeOf(uint(0)),
	reflect.Uint8:   reflect.TypeOf(uint8(0)),
	reflect.Uint16:  reflect.TypeOf(uint16(0)),
	reflect.Uint32:  reflect.TypeOf(uint32(0)),
	reflect.Uint64:  reflect.TypeOf(uint64(0)),
	reflect.Float32: reflect.TypeOf(float32(0)),
	reflect.Float64: reflect.TypeOf(float64(0)),
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Enum is implemented by named types that form an enumeration
type Enum interface {
	EnumValues() []string
}

var enumType = reflect.TypeOf((*Enum)(nil)).Elem()

// Enumeration is a named set of literal values backed by an Enum type
type Enumeration struct {
	typ    reflect.Type
	values []string
}

// Name returns the Go name of the enumeration type
func (e *Enumeration) Name() string { return e.typ.String() }

// GoType returns the enumeration's Go type
func (e *Enumeration) GoType() reflect.Type { return e.typ }

// Values returns a copy of the literal values
func (e *Enumeration) Values() []string {
	out := make([]string, len(e.values))
	copy(out, e.values)
	return out
}

// isEnumType reports whether typ or *typ implements Enum
func isEnumType(typ reflect.Type) bool {
	if typ == nil || typ.Kind() == reflect.Interface {
		return false
	}
	return typ.Implements(enumType) || reflect.PointerTo(typ).Implements(enumType)
}

// newEnumeration reads the literal values from the zero value of typ
func newEnumeration(typ reflect.Type) *Enumeration {
	v := reflect.New(typ)
	var values []string
	if typ.Implements(enumType) {
		values = v.Elem().Interface().(Enum).EnumValues()
	} else {
		values = v.Interface().(Enum).EnumValues()
	}
	return &Enumeration{typ: typ, values: values}
}
