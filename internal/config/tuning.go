package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"rutas/internal/engine"
	"rutas/internal/journey"
	"rutas/internal/spatial"
)

// Tuning holds the search and last-mile parameters that operators may
// override from a YAML file. Fields missing from the file keep their
// defaults.
type Tuning struct {
	Threshold      float64  `yaml:"threshold" validate:"gt=0,lt=1"`
	Hubs           []string `yaml:"hubs" validate:"dive,required"`
	MaxQueryLength int      `yaml:"max_query_length" validate:"gte=1"`
	MaxResults     int      `yaml:"max_results" validate:"gte=1"`
	MaxDirect      int      `yaml:"max_direct" validate:"gte=1"`
	MaxPairs       int      `yaml:"max_pairs" validate:"gte=1"`
	MaxComparisons int      `yaml:"max_comparisons" validate:"gte=1"`

	ReferenceLat float64 `yaml:"reference_lat" validate:"gte=-90,lte=90"`
	Candidates   int     `yaml:"candidates" validate:"gte=1,lte=64"`
	WalkKm       float64 `yaml:"walk_km" validate:"gt=0"`
	PrivateKm    float64 `yaml:"private_km" validate:"gtefield=WalkKm"`

	MinBalance float64 `yaml:"min_balance" validate:"gte=0"`
}

func DefaultTuning() Tuning {
	s := journey.DefaultOptions()
	sp := spatial.DefaultOptions()
	return Tuning{
		Threshold:      s.Threshold,
		Hubs:           append([]string(nil), s.Hubs...),
		MaxQueryLength: s.MaxQueryLength,
		MaxResults:     s.MaxResults,
		MaxDirect:      s.MaxDirect,
		MaxPairs:       s.MaxPairs,
		MaxComparisons: s.MaxComparisons,
		ReferenceLat:   sp.ReferenceLat,
		Candidates:     sp.Candidates,
		WalkKm:         sp.WalkKm,
		PrivateKm:      sp.PrivateKm,
		MinBalance:     engine.DefaultMinBalance,
	}
}

// LoadTuning reads a YAML tuning file over the defaults and validates it.
func LoadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tuning file: %w", err)
	}
	return ParseTuning(data)
}

func ParseTuning(data []byte) (*Tuning, error) {
	t := DefaultTuning()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode tuning: %w", err)
	}
	if err := validator.New().Struct(t); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return &t, nil
}

func (t Tuning) EngineOptions() engine.Options {
	return engine.Options{
		Search: journey.Options{
			Threshold:      t.Threshold,
			Hubs:           t.Hubs,
			MaxQueryLength: t.MaxQueryLength,
			MaxResults:     t.MaxResults,
			MaxDirect:      t.MaxDirect,
			MaxPairs:       t.MaxPairs,
			MaxComparisons: t.MaxComparisons,
		},
		Spatial: spatial.Options{
			ReferenceLat: t.ReferenceLat,
			Candidates:   t.Candidates,
			WalkKm:       t.WalkKm,
			PrivateKm:    t.PrivateKm,
		},
		MinBalance: t.MinBalance,
	}
}
