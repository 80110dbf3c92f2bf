package cache

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/opendec/opendec/internal/syntax"
)

// Fingerprint identifies a resolved compilation unit's output. Two
// compilations with equal fingerprints produce byte-identical
// intermediate text.
type Fingerprint [sha256.Size]byte

// String returns the full hex digest.
func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// Short returns the digest prefix used for on-disk entry names.
func (f Fingerprint) Short() string { return hex.EncodeToString(f[:16]) }

// NewFingerprint digests a resolved node sequence together with the
// generator version and target engine. Node String forms are
// content-complete (imports spliced, play paths resolved), so the
// digest covers all transitive content.
func NewFingerprint(nodes []syntax.Node, generatorVersion, engine string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(generatorVersion))
	h.Write([]byte{0})
	h.Write([]byte(engine))
	h.Write([]byte{0})
	for _, n := range nodes {
		h.Write([]byte(n.String()))
		h.Write([]byte{0})
	}

	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}
