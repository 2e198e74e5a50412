package confloader

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

// ErrReadBytesNotSupported is returned by mapProvider.ReadBytes.
var ErrReadBytesNotSupported = errors.New("confloader: map provider has no byte form")

// mapProvider feeds an already-parsed map to koanf. Keys may be dotted.
type mapProvider map[string]any

// ReadBytes is unused; koanf calls Read when the parser is nil.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

// Read returns the map with dotted keys expanded into nested maps, so
// that Unmarshal sees the same shape a YAML file would produce.
func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
