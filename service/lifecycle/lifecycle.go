package lifecycle

import "sync"

type Liveness int

const (
	// Unknown covers a dead process as well as one whose state was never reported.
	Unknown Liveness = iota
	Foreground
	Background
)

func (l Liveness) String() string {
	switch l {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

func ParseLiveness(s string) Liveness {
	switch s {
	case "foreground":
		return Foreground
	case "background":
		return Background
	default:
		return Unknown
	}
}

// Snapshot is the application state as read at a single decision point.
// Changes after the read are not reflected.
type Snapshot struct {
	Liveness              Liveness
	HasRegisteredConsumer bool
}

func (s Snapshot) Alive() bool {
	return s.Liveness != Unknown
}

// InBackground reports whether the application UI is not in front of the user.
func (s Snapshot) InBackground() bool {
	return s.Liveness != Foreground
}

func (s Snapshot) ForegroundWithConsumer() bool {
	return s.Liveness == Foreground && s.HasRegisteredConsumer
}

// Tracker holds the liveness reported by the host application shell.
type Tracker struct {
	mu       sync.RWMutex
	liveness Liveness
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Set(l Liveness) {
	t.mu.Lock()
	t.liveness = l
	t.mu.Unlock()
}

func (t *Tracker) Liveness() Liveness {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.liveness
}
