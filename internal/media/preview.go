package media

import (
	"sync"

	"github.com/google/uuid"
)

const previewScheme = "preview://"

// Previews hands out transient preview handles for staged attachments.
// Each handle has a single owner and is released exactly once; released
// URLs are never handed out again.
type Previews struct {
	mu      sync.Mutex
	handles map[string]*File
}

// NewPreviews creates an empty registry.
func NewPreviews() *Previews {
	return &Previews{handles: make(map[string]*File)}
}

// Preview is one live handle.
type Preview struct {
	URL string

	once     sync.Once
	registry *Previews
}

// Create registers f and returns its handle.
func (p *Previews) Create(f *File) *Preview {
	url := previewScheme + uuid.NewString()
	p.mu.Lock()
	p.handles[url] = f
	p.mu.Unlock()
	return &Preview{URL: url, registry: p}
}

// Lookup returns the file behind a live handle.
func (p *Previews) Lookup(url string) (*File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.handles[url]
	return f, ok
}

// Len returns the number of live handles.
func (p *Previews) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Release frees the handle. Later calls are no-ops.
func (h *Preview) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.registry.mu.Lock()
		delete(h.registry.handles, h.URL)
		h.registry.mu.Unlock()
	})
}

// Live reports whether the handle has not been released yet.
func (h *Preview) Live() bool {
	if h == nil {
		return false
	}
	_, ok := h.registry.Lookup(h.URL)
	return ok
}
