package text

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	// DefaultMaxLength is the longest accepted message, in code points,
	// after trimming.
	DefaultMaxLength = 4000

	// DefaultCacheSize bounds the raw→normalized lookup cache.
	DefaultCacheSize = 100
)

// ValidationError reports content that can never be delivered. It is
// never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid message: " + e.Reason
}

// Normalizer validates and normalizes outbound message text.
//
// Normalized results are cached. Once the cache is full the oldest
// inserted entry is evicted first.
type Normalizer struct {
	maxLength int

	mu       sync.Mutex
	capacity int
	cache    map[string]string
	order    []string
}

// NewNormalizer creates a Normalizer. Non-positive arguments select
// the defaults.
func NewNormalizer(cacheSize, maxLength int) *Normalizer {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Normalizer{
		maxLength: maxLength,
		capacity:  cacheSize,
		cache:     make(map[string]string, cacheSize),
		order:     make([]string, 0, cacheSize),
	}
}

// Validate checks content and returns it trimmed.
func (n *Normalizer) Validate(content string) (string, error) {
	if !utf8.ValidString(content) {
		return "", &ValidationError{Reason: "content is not valid text"}
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", &ValidationError{Reason: "content is empty"}
	}
	if l := utf8.RuneCountInString(trimmed); l > n.maxLength {
		return "", &ValidationError{Reason: fmt.Sprintf("content is %d characters, limit is %d", l, n.maxLength)}
	}
	return trimmed, nil
}

// Normalize trims content and collapses every internal run of
// whitespace to a single space.
func (n *Normalizer) Normalize(content string) string {
	n.mu.Lock()
	if v, ok := n.cache[content]; ok {
		n.mu.Unlock()
		return v
	}
	n.mu.Unlock()

	normalized := strings.Join(strings.Fields(content), " ")

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.cache[content]; !ok {
		if len(n.order) >= n.capacity {
			oldest := n.order[0]
			n.order = n.order[1:]
			delete(n.cache, oldest)
		}
		n.order = append(n.order, content)
		n.cache[content] = normalized
	}
	return normalized
}

// Preprocess validates content and returns its normalized form.
func (n *Normalizer) Preprocess(content string) (string, error) {
	if _, err := n.Validate(content); err != nil {
		return "", err
	}
	return n.Normalize(content), nil
}

// CacheLen returns the number of cached normalizations.
func (n *Normalizer) CacheLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.cache)
}
