package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed grasssticks.yaml
var builtinYAML []byte

// Builtin returns the catalog shipped with the binary: the ski pole and
// plunger products of the GrassSticks storefront.
func Builtin() *Catalog {
	c, err := Parse(builtinYAML)
	if err != nil {
		panic("catalog: builtin catalog invalid: " + err.Error())
	}
	return c
}

// LoadFile reads and validates a YAML catalog.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog, applies defaults and validates it. Unknown
// fields are rejected so a typo never silently drops a price rule.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
