// Package credential holds the SHA-256 digests that stand in for user secrets.
package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the length of a digest in bytes.
const Size = sha256.Size

var (
	ErrFormat       = errors.New("credential: malformed digest")
	ErrOddLength    = fmt.Errorf("%w: odd length hex", ErrFormat)
	ErrInvalidHex   = fmt.Errorf("%w: non-hex character", ErrFormat)
	ErrDigestLength = fmt.Errorf("%w: wrong length", ErrFormat)
)

// Digest is the one-way hash of a user's secret.
type Digest [Size]byte

// Hash returns the SHA-256 digest of secret.
func Hash(secret string) Digest {
	return Digest(sha256.Sum256([]byte(secret)))
}

// ParseDigest decodes a 64 character hex string (either case) into a Digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s)%2 != 0 {
		return d, fmt.Errorf("%w: %d characters", ErrOddLength, len(s))
	}
	if len(s) != 2*Size {
		return d, fmt.Errorf("%w: %d characters, want %d", ErrDigestLength, len(s), 2*Size)
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		var ib hex.InvalidByteError
		if errors.As(err, &ib) {
			return Digest{}, fmt.Errorf("%w: %q", ErrInvalidHex, byte(ib))
		}
		return Digest{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return d, nil
}

// String returns the lower-case hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
