// Package schemavalidation checks exported reports against the published
// JSON schemas before they leave the process.
package schemavalidation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema URLs. The envelope schema references the report schema by URL.
const (
	ReportSchemaURL   = "https://carepulse.local/schema/report-v1.schema.json"
	EnvelopeSchemaURL = "https://carepulse.local/schema/signed-report-v1.schema.json"
)

var (
	//go:embed report.schema.json
	reportSchemaJSON []byte

	//go:embed envelope.schema.json
	envelopeSchemaJSON []byte
)

var (
	once     sync.Once
	schemas  map[string]*jsonschema.Schema
	buildErr error
)

func compiled() (map[string]*jsonschema.Schema, error) {
	once.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true
		if err := compiler.AddResource(ReportSchemaURL, bytes.NewReader(reportSchemaJSON)); err != nil {
			buildErr = fmt.Errorf("add report schema: %w", err)
			return
		}
		if err := compiler.AddResource(EnvelopeSchemaURL, bytes.NewReader(envelopeSchemaJSON)); err != nil {
			buildErr = fmt.Errorf("add envelope schema: %w", err)
			return
		}
		out := make(map[string]*jsonschema.Schema, 2)
		for _, url := range []string{ReportSchemaURL, EnvelopeSchemaURL} {
			s, err := compiler.Compile(url)
			if err != nil {
				buildErr = fmt.Errorf("compile %s: %w", url, err)
				return
			}
			out[url] = s
		}
		schemas = out
	})
	return schemas, buildErr
}

// ValidateReport checks an unsigned report export.
func ValidateReport(data []byte) error {
	return validate(ReportSchemaURL, data)
}

// ValidateEnvelope checks a signed export, including its report payload.
func ValidateEnvelope(data []byte) error {
	return validate(EnvelopeSchemaURL, data)
}

func validate(url string, data []byte) error {
	all, err := compiled()
	if err != nil {
		return err
	}

	var instance any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("decode instance: %w", err)
	}

	if err := all[url].Validate(instance); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
