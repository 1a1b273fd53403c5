package signaling

import (
	"crypto/rand"
	"encoding/binary"
)

// randomID returns a random nonzero uint64, following the teacher's
// core/redis_registry.go convention of using crypto/rand rather than
// math/rand for identifiers that cross a trust boundary (client-visible
// session/handle ids). Zero is reserved as "unset" (spec §3 invariant:
// ids are nonzero).
func randomID() uint64 {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic("signaling: crypto/rand unavailable: " + err.Error())
		}
		id := binary.BigEndian.Uint64(buf[:])
		if id != 0 {
			return id
		}
	}
}
