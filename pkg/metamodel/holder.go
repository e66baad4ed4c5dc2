package metamodel

import (
	"context"
	"sync"
	"sync/atomic"
)

// Holder publishes the current Session. Readers never block; a reload builds a fresh
// session and swaps it in only when loading succeeds.
type Holder struct {
	loader  *Loader
	current atomic.Pointer[Session]
	mu      sync.Mutex
}

// NewHolder creates a holder with no published session
func NewHolder(loader *Loader) *Holder {
	return &Holder{loader: loader}
}

// Session returns the published session, or nil before the first successful load
func (h *Holder) Session() *Session {
	return h.current.Load()
}

// Reload loads the named classes into a new session and publishes it. On failure the
// previously published session stays in place.
func (h *Holder) Reload(ctx context.Context, classNames []string) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	session := NewSession()
	if err := h.loader.Load(ctx, session, classNames); err != nil {
		return nil, err
	}
	h.current.Store(session)
	return session, nil
}
