// Package tenant validates tenant identifiers and derives the storage keys
// and broadcast channel names scoped to a tenant.
package tenant

import (
	"errors"
	"fmt"
)

// MaxLen bounds tenant identifiers so they fit a Postgres channel name.
const MaxLen = 48

// ErrInvalid is returned for empty or malformed tenant identifiers.
var ErrInvalid = errors.New("invalid tenant id")

// Validate accepts 1..MaxLen characters from [A-Za-z0-9_-].
func Validate(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalid)
	}
	if len(id) > MaxLen {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalid, MaxLen)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return fmt.Errorf("%w: unexpected character %q", ErrInvalid, c)
		}
	}
	return nil
}

// Channel is the broadcast channel carrying order events for a tenant.
func Channel(id string) string {
	return "orders_" + id
}

// Key builds a storage key "<kind>/<tenant>/<suffix...>".
func Key(kind, id string, suffix ...[]byte) []byte {
	n := len(kind) + 1 + len(id) + 1
	for _, s := range suffix {
		n += len(s)
	}
	k := make([]byte, 0, n)
	k = append(k, kind...)
	k = append(k, '/')
	k = append(k, id...)
	k = append(k, '/')
	for _, s := range suffix {
		k = append(k, s...)
	}
	return k
}
