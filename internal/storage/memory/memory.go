// Package memory implements the domain repositories in process memory.
// It backs development mode and mirrors the PostgreSQL version semantics.
package memory

import (
	"encoding/json"

	"github.com/go-faster/errors"
)

// clone deep-copies v through its JSON form, the same representation the
// PostgreSQL store keeps, so callers never share state with the store.
func clone[T any](v *T) (*T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode")
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return out, nil
}
