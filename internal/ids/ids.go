// Package ids issues ULIDs for connections and admin requests.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Source issues identifiers that sort in issue order, even when the wall clock
// steps backwards.
type Source struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
	lastMS  uint64
}

// NewSource seeds a Source. A nil now uses time.Now.
func NewSource(seed int64, now func() time.Time) *Source {
	if now == nil {
		now = time.Now
	}
	return &Source{
		now:     now,
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(seed)), 0),
	}
}

// Next returns the next identifier in canonical 26-character form.
func (s *Source) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := ulid.Timestamp(s.now())
	if ms < s.lastMS {
		ms = s.lastMS
	}
	id, err := ulid.New(ms, s.entropy)
	if err != nil {
		// Random part exhausted within this millisecond.
		ms++
		id = ulid.MustNew(ms, s.entropy)
	}
	s.lastMS = ms
	return id.String()
}

var process = NewSource(time.Now().UnixNano(), nil)

// New returns the next identifier from the process-wide Source.
func New() string { return process.Next() }
