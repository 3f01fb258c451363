package domain

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewResultID derives a Result id from the owning uid and the creation
// instant. The ULID suffix is monotonic within a millisecond, so two results
// created at the same instant still get distinct ids.
func NewResultID(userID string, at time.Time) string {
	entropyLock.Lock()
	defer entropyLock.Unlock()

	return userID + "_" + ulid.MustNew(ulid.Timestamp(at), entropy).String()
}
