package metamodel

import (
	"reflect"
	"strings"

	"go.uber.org/zap"
)

// initProperties creates the own properties of one class. Scalar fields come first,
// collection and map fields after them, accessors last. Classes that already have
// properties are left alone so repeated loads are harmless.
func (l *Loader) initProperties(c *ClassNode) ([]*rangeTask, error) {
	if len(c.own) > 0 {
		return nil, nil
	}

	type pendingField struct {
		el      Element
		markers Markers
	}

	var (
		tasks       []*rangeTask
		collections []pendingField
	)

	for _, el := range l.reader.Fields(c.typ) {
		m, err := l.reader.Markers(el)
		if err != nil {
			return nil, loadError(PhasePropertiesLoaded, c.name, propertyName(el.Name), err)
		}
		if !m.IsProperty() {
			continue
		}
		if l.isCollectionType(deref(el.Type)) {
			collections = append(collections, pendingField{el: el, markers: m})
			continue
		}
		task, err := l.loadField(c, el, m)
		if err != nil {
			return nil, err
		}
		if task != nil {
			tasks = append(tasks, task)
		}
	}

	for _, pf := range collections {
		task, err := l.loadField(c, pf.el, pf.markers)
		if err != nil {
			return nil, err
		}
		if task != nil {
			tasks = append(tasks, task)
		}
	}

	accessors, err := l.reader.Accessors(c.typ)
	if err != nil {
		return nil, loadError(PhasePropertiesLoaded, c.name, "", err)
	}
	for _, el := range accessors {
		task, err := l.loadAccessor(c, el)
		if err != nil {
			return nil, err
		}
		if task != nil {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

func (l *Loader) loadField(c *ClassNode, el Element, m Markers) (*rangeTask, error) {
	name := propertyName(el.Name)
	if l.isDuplicate(c, name, el) {
		return nil, nil
	}

	f, err := l.extractField(el, m)
	if err != nil {
		return nil, loadError(PhasePropertiesLoaded, c.name, name, err)
	}

	p := newPropertyNode(c, name, el, m)
	p.mandatory = f.mandatory
	p.readOnly = isReadOnly(el, m)
	p.constraints = m.Constraints

	rng, task := l.loadRange(p, f.valueType, f)
	if rng != nil {
		p.rng = rng
		p.kind = kindOf(m, rng)
		if err := assignInverse(p, rng, f.inverse); err != nil {
			return nil, loadError(PhasePropertiesLoaded, c.name, name, err)
		}
	}
	c.addOwn(p)

	if err := l.onPropertyLoaded(c, p, f); err != nil {
		return nil, loadError(PhasePropertiesLoaded, c.name, name, err)
	}
	return task, nil
}

func (l *Loader) loadAccessor(c *ClassNode, el Element) (*rangeTask, error) {
	name := accessorPropertyName(el.Name)

	m, err := l.reader.Markers(el)
	if err != nil {
		return nil, loadError(PhasePropertiesLoaded, c.name, name, err)
	}
	if m.Model == nil {
		l.logger.Debug("accessor without model marker skipped",
			zap.String("class", c.name),
			zap.String("method", el.Name),
		)
		return nil, nil
	}
	if l.isDuplicate(c, name, el) {
		return nil, nil
	}

	f, err := l.extractAccessor(el, m)
	if err != nil {
		return nil, loadError(PhasePropertiesLoaded, c.name, name, err)
	}

	p := newPropertyNode(c, name, el, m)
	p.mandatory = f.mandatory
	p.readOnly = isReadOnly(el, m)
	p.constraints = m.Constraints

	rng, task := l.loadRange(p, f.valueType, f)
	if rng != nil {
		p.rng = rng
		p.kind = kindOf(m, rng)
	}
	c.addOwn(p)

	if err := l.onPropertyLoaded(c, p, f); err != nil {
		return nil, loadError(PhasePropertiesLoaded, c.name, name, err)
	}
	return task, nil
}

// isDuplicate logs and reports a name already taken by the class or an ancestor
func (l *Loader) isDuplicate(c *ClassNode, name string, el Element) bool {
	existing, ok := c.Property(name)
	if !ok {
		return false
	}
	l.logger.Warn("duplicate property skipped",
		zap.String("class", c.name),
		zap.String("property", name),
		zap.String("element", el.Kind.String()+" "+el.Name),
		zap.String("existing", existing.String()),
	)
	return true
}

// isReadOnly applies the setter conventions: exported fields are writable, unexported
// fields and accessors need a Set method on the pointer receiver
func isReadOnly(el Element, m Markers) bool {
	if m.Model != nil && m.Model.ReadOnly {
		return true
	}
	if el.Kind == ElementField && el.Exported {
		return false
	}
	ptr := reflect.PointerTo(el.Owner)
	for _, setter := range setterNames(el.Name) {
		if _, ok := ptr.MethodByName(setter); ok {
			return false
		}
	}
	return true
}

// onPropertyLoaded attaches the derived annotations and the property store
func (l *Loader) onPropertyLoaded(c *ClassNode, p *PropertyNode, f propertyFacts) error {
	for k, v := range p.markers.Extensions {
		p.extensions[k] = v
	}
	if p.markers.Model != nil && len(p.markers.Model.Related) > 0 {
		p.annotations[AnnotationRelatedProperties] = strings.Join(p.markers.Model.Related, ",")
	}
	if err := l.validationAnnotations(p); err != nil {
		return err
	}

	p.store = l.propertyStore(c, p)

	if p.element.Kind != ElementField {
		if l.isSystemProperty(p) {
			p.annotations[AnnotationSystem] = true
		}
		return nil
	}

	m := p.markers
	if f.primaryKey {
		p.annotations[AnnotationPrimaryKey] = true
		c.annotations[AnnotationPrimaryKey] = p.name
	}
	if m.Column != nil && m.Column.Length > 0 && !m.Lob {
		p.annotations[AnnotationLength] = m.Column.Length
	}
	if m.Temporal != "" {
		p.annotations[AnnotationTemporal] = m.Temporal
	}
	if f.primaryKey || l.isSystemProperty(p) {
		p.annotations[AnnotationSystem] = true
	}
	return nil
}

// validationAnnotations records the constraints that apply to the default group, and
// not-null constraints aimed at UI components
func (l *Loader) validationAnnotations(p *PropertyNode) error {
	for _, c := range p.constraints {
		def, err := l.oracle.AppliesTo(c, GroupDefault, true)
		if err != nil {
			return err
		}

		if c.Kind == ConstraintNotNull {
			if def {
				p.annotations[AnnotationNotNullMessage] = c.Message
			}
			ui, err := l.oracle.AppliesTo(c, GroupUI, true)
			if err != nil {
				return err
			}
			if ui {
				p.annotations[AnnotationNotNullMessage] = c.Message
				p.annotations[AnnotationNotNullUIComponent] = true
			}
			continue
		}
		if !def {
			continue
		}

		switch c.Kind {
		case ConstraintSize:
			p.annotations[AnnotationSizeMin] = c.Min
			p.annotations[AnnotationSizeMax] = c.Max
		case ConstraintLength:
			p.annotations[AnnotationLengthMin] = c.Min
			p.annotations[AnnotationLengthMax] = c.Max
		case ConstraintMin:
			p.annotations[AnnotationMin] = c.Min
		case ConstraintMax:
			p.annotations[AnnotationMax] = c.Max
		case ConstraintDecimalMin:
			p.annotations[AnnotationDecimalMin] = c.Value
		case ConstraintDecimalMax:
			p.annotations[AnnotationDecimalMax] = c.Value
		case ConstraintPast:
			p.annotations[AnnotationPast] = true
		case ConstraintFuture:
			p.annotations[AnnotationFuture] = true
		}
	}
	return nil
}

// isSystemProperty reports whether the property is read by a getter of one of the
// configured system interfaces implemented by its declaring type
func (l *Loader) isSystemProperty(p *PropertyNode) bool {
	if len(l.systemInterfaces) == 0 {
		return false
	}
	ptr := reflect.PointerTo(p.declaringType)
	getters := []string{"Get" + capitalize(p.name), capitalize(p.name)}
	if p.element.Kind == ElementAccessor {
		getters = append(getters, p.element.Name)
	}
	for _, iface := range l.systemInterfaces {
		if !ptr.Implements(iface) {
			continue
		}
		for _, name := range getters {
			if m, ok := iface.MethodByName(name); ok && m.Type.NumIn() == 0 {
				return true
			}
		}
	}
	return false
}

// propertyStore demotes non-persistent properties of persistent classes to the
// undefined store; everything else shares the class store
func (l *Loader) propertyStore(c *ClassNode, p *PropertyNode) Store {
	if c.markers.Persistent() && !p.markers.Persistent() {
		return l.undefinedStore
	}
	return c.store
}
