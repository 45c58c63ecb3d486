package patch

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed init.yaml
var initPatch []byte

// Load decodes a patch from YAML or JSON. JSON documents exported by the
// patch generator are valid YAML, so one decoder serves both.
func Load(data []byte) (*Patch, error) {
	var p Patch
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func LoadFile(path string) (*Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Marshal encodes p as YAML.
func Marshal(p *Patch) ([]byte, error) {
	return yaml.Marshal(p)
}

// Init returns a fresh copy of the built-in init patch.
func Init() *Patch {
	p, err := Load(initPatch)
	if err != nil {
		panic(err)
	}
	return p
}
