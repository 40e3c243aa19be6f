package topology

import (
	"fmt"

	"Go2FlowLabel/internal/model"

	"gopkg.in/yaml.v3"
)

// Document is the YAML file read by the emulator side.
type Document struct {
	Topologies []model.TopologyDesc `yaml:"topologies"`
}

// Render encodes descriptions as a YAML document.
func Render(descs ...model.TopologyDesc) ([]byte, error) {
	out, err := yaml.Marshal(Document{Topologies: descs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal topology document: %w", err)
	}
	return out, nil
}

// Parse decodes a YAML document produced by Render.
func Parse(data []byte) ([]model.TopologyDesc, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal topology document: %w", err)
	}
	for _, d := range doc.Topologies {
		if err := Validate(d); err != nil {
			return nil, err
		}
	}
	return doc.Topologies, nil
}
