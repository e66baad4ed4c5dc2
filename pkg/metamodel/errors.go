package metamodel

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for fatal load failures. A failed load leaves no published session.
var (
	ErrUnknownRangeClass        = errors.New("unknown range class")
	ErrUnresolvedInverse        = errors.New("unresolved inverse property")
	ErrAsymmetricInverse        = errors.New("asymmetric inverse property")
	ErrUnsupportedPropertyShape = errors.New("unsupported property shape")
	ErrUnreadableAnnotation     = errors.New("unreadable annotation")
	ErrUnknownStore             = errors.New("unknown store")
)

// LoadError describes a fatal metadata configuration error
type LoadError struct {
	Phase    LoadPhase
	Class    string
	Property string
	Err      error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("metadata load failed")
	if e.Phase != PhaseDiscovering {
		fmt.Fprintf(&b, " (%s)", e.Phase)
	}
	switch {
	case e.Class != "" && e.Property != "":
		fmt.Fprintf(&b, " at %s.%s", e.Class, e.Property)
	case e.Class != "":
		fmt.Fprintf(&b, " at %s", e.Class)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func loadError(phase LoadPhase, class, property string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Phase: phase, Class: class, Property: property, Err: err}
}
