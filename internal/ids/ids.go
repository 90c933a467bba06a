package ids

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator hands out identities for new records. Implementations must not
// repeat an id within the lifetime of the process.
type Generator interface {
	NewID() string
}

// Random produces ids of the form "<prefix>-<unix millis>-<random>".
type Random struct {
	Prefix string
}

func (r Random) NewID() string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = "mock"
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), uuid.NewString())
}

// Sequence produces "<prefix>-1", "<prefix>-2", ... and is meant for tests.
type Sequence struct {
	Prefix string

	mu sync.Mutex
	n  int
}

func (s *Sequence) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.Prefix, s.n)
}
