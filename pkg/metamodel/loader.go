package metamodel

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// LoadPhase is the state a load has reached. Phases advance strictly in order.
type LoadPhase int

const (
	PhaseDiscovering LoadPhase = iota
	PhaseClassesRegistered
	PhaseAncestorsLinked
	PhasePropertiesLoaded
	PhaseFullyResolved
)

// String returns the string representation of the phase
func (p LoadPhase) String() string {
	switch p {
	case PhaseDiscovering:
		return "discovering"
	case PhaseClassesRegistered:
		return "classes_registered"
	case PhaseAncestorsLinked:
		return "ancestors_linked"
	case PhasePropertiesLoaded:
		return "properties_loaded"
	case PhaseFullyResolved:
		return "fully_resolved"
	default:
		return "unknown"
	}
}

const tracerName = "github.com/conduit-lang/metagraph/pkg/metamodel"

// Loader builds class nodes from registered Go types into a Session
type Loader struct {
	catalog          *TypeCatalog
	reader           MarkerReader
	datatypes        *DatatypeRegistry
	stores           StoreRegistry
	oracle           GroupOracle
	systemInterfaces []reflect.Type
	logger           *zap.Logger
	tracer           trace.Tracer

	// per-load state
	undefinedStore Store
	enums          map[reflect.Type]*Enumeration
	phase          LoadPhase
}

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the logger used for warnings about skipped elements
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTracer sets the tracer that records one span per load phase
func WithTracer(tracer trace.Tracer) Option {
	return func(l *Loader) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

// WithDatatypes replaces the built-in datatype registry
func WithDatatypes(registry *DatatypeRegistry) Option {
	return func(l *Loader) {
		l.datatypes = registry
	}
}

// WithStores sets the store registry used to resolve class stores
func WithStores(stores StoreRegistry) Option {
	return func(l *Loader) {
		l.stores = stores
	}
}

// WithGroupOracle sets the validation group oracle
func WithGroupOracle(oracle GroupOracle) Option {
	return func(l *Loader) {
		l.oracle = oracle
	}
}

// WithMarkerReader replaces the struct tag reader
func WithMarkerReader(reader MarkerReader) Option {
	return func(l *Loader) {
		l.reader = reader
	}
}

// WithSystemInterfaces marks properties read through getters of these interface
// types as system properties
func WithSystemInterfaces(ifaces ...reflect.Type) Option {
	return func(l *Loader) {
		for _, iface := range ifaces {
			if iface.Kind() == reflect.Pointer {
				iface = iface.Elem()
			}
			if iface.Kind() == reflect.Interface {
				l.systemInterfaces = append(l.systemInterfaces, iface)
			}
		}
	}
}

// NewLoader creates a loader resolving class names through catalog
func NewLoader(catalog *TypeCatalog, opts ...Option) *Loader {
	l := &Loader{
		catalog:   catalog,
		reader:    NewTagReader(catalog),
		datatypes: NewDatatypeRegistry(),
		stores:    NewStores(),
		oracle:    DefaultGroupOracle{},
		logger:    zap.NewNop(),
		tracer:    noop.NewTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load registers the named classes into session and resolves their properties.
// Unknown names and types without class markers are logged and skipped. Any
// configuration error aborts the load; the session must then be discarded.
// A Loader runs one load at a time.
func (l *Loader) Load(ctx context.Context, session *Session, classNames []string) error {
	ctx, span := l.tracer.Start(ctx, "metamodel.Load",
		trace.WithAttributes(attribute.Int("metagraph.classes.requested", len(classNames))))
	defer span.End()

	err := l.load(ctx, session, classNames)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.Int("metagraph.classes.loaded", session.Count()))
	return nil
}

func (l *Loader) load(ctx context.Context, session *Session, classNames []string) error {
	l.phase = PhaseDiscovering
	l.enums = make(map[reflect.Type]*Enumeration)

	undefined, err := l.stores.Get(StoreUndefined)
	if err != nil {
		return loadError(PhaseDiscovering, "", "", err)
	}
	l.undefinedStore = undefined

	types := l.discover(classNames)

	var batch []*ClassNode
	err = l.runPhase(ctx, PhaseClassesRegistered, func() error {
		batch, err = l.registerClasses(session, types)
		return err
	})
	if err != nil {
		return err
	}

	err = l.runPhase(ctx, PhaseAncestorsLinked, func() error {
		for _, c := range session.classes {
			l.linkAncestors(session, c)
			if err := l.assignClassStore(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var tasks []*rangeTask
	err = l.runPhase(ctx, PhasePropertiesLoaded, func() error {
		for _, c := range batch {
			ts, err := l.initProperties(c)
			if err != nil {
				return err
			}
			tasks = append(tasks, ts...)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = l.runPhase(ctx, PhaseFullyResolved, func() error {
		for _, t := range tasks {
			if err := l.executeTask(session, t); err != nil {
				return err
			}
		}
		if err := completeInverses(session.classes); err != nil {
			return err
		}
		for _, c := range session.classes {
			inheritProperties(c)
		}
		return nil
	})
	if err != nil {
		return err
	}

	session.loadedAt = time.Now()
	l.logger.Debug("metadata loaded",
		zap.Stringer("session", session.id),
		zap.Int("classes", session.Count()),
		zap.Int("deferred_ranges", len(tasks)),
	)
	return nil
}

// runPhase runs fn inside a span named after the target phase and advances the phase
// on success
func (l *Loader) runPhase(ctx context.Context, phase LoadPhase, fn func() error) error {
	_, span := l.tracer.Start(ctx, "metamodel."+phase.String())
	defer span.End()

	if err := fn(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return loadError(phase, "", "", err)
	}
	l.phase = phase
	return nil
}

// discover resolves class names to types, preserving first-seen order
func (l *Loader) discover(classNames []string) []reflect.Type {
	seen := make(map[reflect.Type]bool, len(classNames))
	types := make([]reflect.Type, 0, len(classNames))
	for _, name := range classNames {
		typ, ok := l.catalog.Lookup(name)
		if !ok {
			l.logger.Warn("class not found", zap.String("class", name))
			continue
		}
		if seen[typ] {
			continue
		}
		seen[typ] = true
		types = append(types, typ)
	}
	return types
}

// registerClasses creates class nodes for the types that carry a class marker
func (l *Loader) registerClasses(session *Session, types []reflect.Type) ([]*ClassNode, error) {
	batch := make([]*ClassNode, 0, len(types))
	for _, typ := range types {
		if c, ok := session.FindClass(typ); ok {
			batch = append(batch, c)
			continue
		}

		markers, err := l.reader.ClassMarkers(typ)
		if err != nil {
			return nil, loadError(PhaseClassesRegistered, typ.String(), "", err)
		}
		if !markers.IsMetadataClass() {
			l.logger.Warn("type is not loaded into metadata", zap.String("type", typ.String()))
			continue
		}

		name := markers.Name
		if name == "" {
			name = typ.Name()
		}
		if other, ok := session.Class(name); ok {
			return nil, loadError(PhaseClassesRegistered, name, "",
				fmt.Errorf("class name already used by %s", other.typ))
		}

		batch = append(batch, session.register(newClassNode(name, typ, markers)))
	}
	return batch, nil
}

// linkAncestors walks the embedding chain and keeps the registered ancestors, nearest first
func (l *Loader) linkAncestors(session *Session, c *ClassNode) {
	c.ancestors = c.ancestors[:0]
	visited := map[reflect.Type]bool{c.typ: true}
	for t := l.reader.Superclass(c.typ); t != nil && !visited[t]; t = l.reader.Superclass(t) {
		visited[t] = true
		if a, ok := session.FindClass(t); ok {
			c.ancestors = append(c.ancestors, a)
		}
	}
}

func (l *Loader) assignClassStore(c *ClassNode) error {
	var name string
	switch {
	case c.markers.Store != "":
		name = c.markers.Store
	case c.markers.Entity, c.markers.Embeddable:
		name = StoreMain
	case c.markers.MappedSuperclass:
		name = StoreUndefined
	default:
		name = StoreNoop
	}
	store, err := l.stores.Get(name)
	if err != nil {
		return loadError(PhaseAncestorsLinked, c.name, "", err)
	}
	c.store = store
	return nil
}

// inheritProperties builds the full property list: own properties first, then the
// own properties of each ancestor, nearest first. The first name wins.
func inheritProperties(c *ClassNode) {
	c.all = c.all[:0]
	c.allByName = make(map[string]*PropertyNode, len(c.own))
	add := func(p *PropertyNode) {
		if _, ok := c.allByName[p.name]; ok {
			return
		}
		c.all = append(c.all, p)
		c.allByName[p.name] = p
	}
	for _, p := range c.own {
		add(p)
	}
	for _, a := range c.ancestors {
		for _, p := range a.own {
			add(p)
		}
	}
}
