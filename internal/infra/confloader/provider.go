package confloader

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

// overrides is a koanf provider over dotted keys.
type overrides map[string]any

func (o overrides) ReadBytes() ([]byte, error) {
	return nil, errors.New("confloader: overrides provide a map, not bytes")
}

func (o overrides) Read() (map[string]any, error) {
	return maps.Unflatten(o, "."), nil
}
