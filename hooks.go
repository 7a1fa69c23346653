package lucide

import "sync"

// StatusListener observes the transient status indicator of an in-flight
// send. An empty status means the indicator was cleared.
type StatusListener func(conversationID, status string)

// ErrorListener observes contained, dismissible failures such as a rolled
// back archive toggle. Each failure is reported exactly once.
type ErrorListener func(conversationID string, err error)

// Hooks fans engine notifications out to the rendering layer.
type Hooks struct {
	mu     sync.RWMutex
	status []StatusListener
	errors []ErrorListener
}

// NewHooks creates an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{}
}

// OnStatus registers a status listener.
func (h *Hooks) OnStatus(fn StatusListener) *Hooks {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = append(h.status, fn)
	return h
}

// OnError registers an error listener.
func (h *Hooks) OnError(fn ErrorListener) *Hooks {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, fn)
	return h
}

func (h *Hooks) emitStatus(conversationID, status string) {
	if h == nil {
		return
	}
	h.mu.RLock()
	listeners := h.status
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(conversationID, status)
	}
}

func (h *Hooks) emitError(conversationID string, err error) {
	if h == nil {
		return
	}
	h.mu.RLock()
	listeners := h.errors
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(conversationID, err)
	}
}
