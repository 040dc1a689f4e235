package streaming

import "sync"

// Hub tracks the live Generator of each session so transports can attach
// to in-flight research.
type Hub struct {
	mu         sync.RWMutex
	generators map[string]*Generator
	cancels    map[string]func()
}

func NewHub() *Hub {
	return &Hub{
		generators: make(map[string]*Generator),
		cancels:    make(map[string]func()),
	}
}

// Register stores a session's generator and cancel func.
func (h *Hub) Register(sessionID string, g *Generator, cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.generators[sessionID] = g
	h.cancels[sessionID] = cancel
}

// Get returns the generator of a live session.
func (h *Hub) Get(sessionID string) (*Generator, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	g, ok := h.generators[sessionID]
	return g, ok
}

// Cancel triggers the session's cancel func. Returns false when the
// session is not live.
func (h *Hub) Cancel(sessionID string) bool {
	h.mu.RLock()
	cancel, ok := h.cancels[sessionID]
	h.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// Remove drops a finished session.
func (h *Hub) Remove(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.generators, sessionID)
	delete(h.cancels, sessionID)
}
