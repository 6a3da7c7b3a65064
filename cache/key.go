package cache

import (
	"encoding/json"
	"fmt"

	nomos "github.com/misaret/nomos-go"
)

// Key is either a Scalar or a Composite.
type Key interface {
	fmt.Stringer
	isKey()
}

// Scalar is a plain string key. Keys of up to 16 hex characters are sent to
// the backend as they are; anything else is hashed.
type Scalar string

func (s Scalar) String() string { return string(s) }
func (Scalar) isKey()           {}

// Composite is a structured key such as []any{"user", 42}. It is JSON encoded
// and always hashed.
type Composite struct {
	Value any
}

func (c Composite) String() string {
	b, err := json.Marshal(c.Value)
	if err != nil {
		return fmt.Sprintf("%v", c.Value)
	}
	return string(b)
}

func (Composite) isKey() {}

// buildKey turns key into the canonical backend key.
func buildKey(prefix string, key Key) (string, error) {
	switch k := key.(type) {
	case Scalar:
		if prefix == "" {
			return nomos.CanonicalKey(string(k)), nil
		}
		return hashed(prefix + string(k)), nil
	case Composite:
		b, err := json.Marshal(k.Value)
		if err != nil {
			return "", fmt.Errorf("encode composite key: %w", err)
		}
		return hashed(prefix + string(b)), nil
	case nil:
		return "", fmt.Errorf("nil key")
	}
	return "", fmt.Errorf("unsupported key type %T", key)
}

// hashed always hashes s, even when it already looks canonical, so that a
// prefixed or composite key can never collide with a raw hex key.
func hashed(s string) string {
	if nomos.IsCanonicalKey(s) {
		return nomos.CanonicalKey("\x00" + s)
	}
	return nomos.CanonicalKey(s)
}
