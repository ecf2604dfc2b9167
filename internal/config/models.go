package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/datanooblol/leonidas/internal/core/llm"
)

// modelCatalog is the shape of MODELS_FILE:
//
//	models:
//	  - key: QWEN3_LC
//	    provider: ollama
//	    model_id: qwen3:8b
//	    endpoint: http://gpu-box:11434
type modelCatalog struct {
	Models []llm.ModelSpec `koanf:"models"`
}

// LoadModelCatalog returns the built-in models followed by the entries of
// path. Entries whose key matches a built-in replace it.
func LoadModelCatalog(path string) ([]llm.ModelSpec, error) {
	specs := llm.BuiltinModels()
	if path == "" {
		return specs, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load models file %s: %w", path, err)
	}

	var cat modelCatalog
	if err := k.Unmarshal("", &cat); err != nil {
		return nil, fmt.Errorf("parse models file %s: %w", path, err)
	}

	index := make(map[string]int, len(specs))
	for i, s := range specs {
		index[s.Key] = i
	}
	for _, s := range cat.Models {
		if i, ok := index[s.Key]; ok {
			specs[i] = s
			continue
		}
		index[s.Key] = len(specs)
		specs = append(specs, s)
	}
	return specs, nil
}
