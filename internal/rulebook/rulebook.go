// Package rulebook loads the versioned clinical content the engine runs
// on: the SDOH and harm-risk taxonomies, risk thresholds, composite weights
// and the trend threshold.
//
// A rulebook is data, never code. It is validated twice: structurally
// against an embedded JSON Schema and then semantically. Once loaded it is
// immutable.
package rulebook

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"carepulse/internal/composite"
	"carepulse/internal/finding"
	"carepulse/internal/riskflag"
	"carepulse/internal/textscan"
	"carepulse/internal/trend"
)

//go:embed default.toml
var defaultRulebook []byte

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://carepulse.local/schema/rulebook-v1.schema.json"

// ErrInvalidRulebook wraps every load and validation failure.
var ErrInvalidRulebook = errors.New("rulebook: invalid rulebook")

// Format is a rulebook encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// TrendSettings configures the trend classifier.
type TrendSettings struct {
	Threshold float64 `json:"threshold"`
}

// Rulebook is the complete clinical content for one engine instance.
type Rulebook struct {
	Version    string               `json:"version"`
	Trend      TrendSettings        `json:"trend"`
	SDOH       []textscan.SDOHTerm  `json:"sdoh"`
	HRS        textscan.HRSTaxonomy `json:"hrs"`
	Thresholds riskflag.Thresholds  `json:"thresholds"`
	Weights    composite.Weights    `json:"weights"`
	Source     string               `json:"-"`
}

// Scanner compiles the taxonomies into a text scanner.
func (r *Rulebook) Scanner() *textscan.Scanner {
	return textscan.NewScanner(r.SDOH, r.HRS)
}

// Classifier returns the trend classifier for this rulebook.
func (r *Rulebook) Classifier() (trend.Classifier, error) {
	return trend.NewClassifier(r.Trend.Threshold)
}

// Categories returns the distinct SDOH categories in taxonomy order.
func (r *Rulebook) Categories() []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range r.SDOH {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	return out
}

// Default returns the embedded rulebook. It panics only if the embedded
// file is broken, which the package tests rule out.
func Default() *Rulebook {
	rb, err := Parse(defaultRulebook, FormatTOML)
	if err != nil {
		panic(fmt.Sprintf("rulebook: embedded default is invalid: %v", err))
	}
	rb.Source = "embedded:default.toml"
	return rb
}

// Load reads a rulebook file. The format is chosen by extension. An empty
// path returns the embedded default.
func Load(path string) (*Rulebook, error) {
	if path == "" {
		return Default(), nil
	}
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rulebook: %w", err)
	}
	rb, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	rb.Source = path
	return rb, nil
}

// FormatOf maps a file extension to a Format.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unsupported file extension %q", ErrInvalidRulebook, filepath.Ext(path))
	}
}

// Parse decodes, schema-checks and validates a rulebook.
func Parse(data []byte, format Format) (*Rulebook, error) {
	doc, err := decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidRulebook, format, err)
	}

	// Round-trip through JSON so every format is checked by the same schema
	// and decoded by the same struct tags.
	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRulebook, err)
	}
	var instance any
	if err := json.Unmarshal(canonical, &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRulebook, err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRulebook, err)
	}

	rb := &Rulebook{
		Trend:      TrendSettings{Threshold: trend.DefaultThreshold},
		Thresholds: riskflag.DefaultThresholds(),
		Weights:    composite.DefaultWeights(),
	}
	if err := json.Unmarshal(canonical, rb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRulebook, err)
	}
	if err := rb.Validate(); err != nil {
		return nil, err
	}
	return rb, nil
}

func decode(data []byte, format Format) (map[string]any, error) {
	doc := make(map[string]any)
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return doc, nil
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add rulebook schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// ValidationErrors collects every semantic problem found in a rulebook.
type ValidationErrors []string

func (v ValidationErrors) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidRulebook, strings.Join(v, "; "))
}

// Unwrap lets errors.Is match ErrInvalidRulebook.
func (v ValidationErrors) Unwrap() error { return ErrInvalidRulebook }

// Validate checks rules the schema cannot express.
func (r *Rulebook) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(r.Version) == "" {
		errs = append(errs, "version is required")
	}
	if r.Trend.Threshold < 0 {
		errs = append(errs, "trend.threshold must be non-negative")
	}

	type key struct{ category, term string }
	seen := make(map[key]bool)
	for i, t := range r.SDOH {
		if strings.TrimSpace(t.Term) == "" {
			errs = append(errs, fmt.Sprintf("sdoh[%d]: empty term", i))
		}
		if strings.TrimSpace(t.Category) == "" {
			errs = append(errs, fmt.Sprintf("sdoh[%d]: empty category", i))
		}
		if _, err := finding.ParsePriority(string(t.Priority)); err != nil {
			errs = append(errs, fmt.Sprintf("sdoh[%d]: %v", i, err))
		}
		k := key{t.Category, strings.ToLower(strings.TrimSpace(t.Term))}
		if seen[k] {
			errs = append(errs, fmt.Sprintf("sdoh[%d]: duplicate term %q in %s", i, t.Term, t.Category))
		}
		seen[k] = true
	}

	if len(r.HRS.Direct) == 0 {
		errs = append(errs, "hrs.direct must list at least one term")
	}
	for i, t := range r.HRS.Direct {
		if strings.TrimSpace(t) == "" {
			errs = append(errs, fmt.Sprintf("hrs.direct[%d]: empty term", i))
		}
	}
	for i, t := range r.HRS.Indirect {
		if strings.TrimSpace(t.Term) == "" || strings.TrimSpace(t.Category) == "" {
			errs = append(errs, fmt.Sprintf("hrs.indirect[%d]: term and category are required", i))
		}
		if t.Category == textscan.DirectCategory {
			errs = append(errs, fmt.Sprintf("hrs.indirect[%d]: category %q is reserved", i, textscan.DirectCategory))
		}
	}

	if err := r.Thresholds.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := r.Weights.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
