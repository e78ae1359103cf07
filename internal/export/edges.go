package export

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/seamark-analytics/climrisk/internal/model"
)

// edgesDoc is the on-disk form of a fitted edge set.
type edgesDoc struct {
	Edges map[string][]float64 `yaml:"edges"`
}

// WriteEdgesYAML writes the fitted bin edges per hazard to a YAML artifact,
// so a later pass can score against the exact same intervals without
// refitting.
func WriteEdgesYAML(path string, edges map[model.Hazard]model.BinEdges) error {
	doc := edgesDoc{Edges: make(map[string][]float64, len(edges))}
	for h, e := range edges {
		doc.Edges[string(h)] = e[:]
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "export: marshal edges")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write edges %s", path)
	}
	return nil
}

// LoadEdgesYAML reads an edge artifact written by WriteEdgesYAML.
func LoadEdgesYAML(path string) (map[model.Hazard]model.BinEdges, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: read edges %s", path)
	}

	var doc edgesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "export: parse edges %s", path)
	}

	out := make(map[model.Hazard]model.BinEdges, len(doc.Edges))
	for name, vals := range doc.Edges {
		h, err := model.ParseHazard(name)
		if err != nil {
			return nil, eris.Wrapf(err, "export: edges %s", path)
		}
		if len(vals) != len(model.BinEdges{}) {
			return nil, eris.Errorf("export: edges %s: hazard %s has %d values, want %d",
				path, name, len(vals), len(model.BinEdges{}))
		}
		var e model.BinEdges
		copy(e[:], vals)
		if err := e.Validate(); err != nil {
			return nil, eris.Wrapf(err, "export: edges %s: hazard %s", path, name)
		}
		out[h] = e
	}
	return out, nil
}
