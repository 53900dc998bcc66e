package model

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// bidEntropy is shared across every NewBID call: ulid.Monotonic's entropy
// source is not safe for concurrent use, so every read goes through mu
// (BID must stay unique and lexicographically non-decreasing in creation
// time across the whole process).
var (
	bidMu      sync.Mutex
	bidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewBID returns a new time-ordered unique bundle identifier, suitable for
// lexicographic time-bucketing in storage keys.
func NewBID() string {
	bidMu.Lock()
	defer bidMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), bidEntropy)
	return id.String()
}
