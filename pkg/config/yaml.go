package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Unknown keys are rejected, as for ini files
func parseYaml(data []byte) (*rawConfig, error) {
	raw := &rawConfig{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(raw)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w : %v", ErrInvalidConfig, err)
	}
	return raw, nil
}
