package estimate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var (
	// ErrShapeParamsNotFound is returned when no shape-parameter file can be
	// located. It is a configuration error.
	ErrShapeParamsNotFound = errors.New("shape parameters not found")

	// ErrInvalidShapeParams is returned when a shape-parameter file does not
	// have exactly the gamma/delta coefficient triples.
	ErrInvalidShapeParams = errors.New("invalid shape parameters")
)

//go:embed shape_params.schema.json
var shapeParamsSchema string

const shapeParamsSchemaURL = "shape_params.schema.json"

// Curve holds the fitted (a, b, c) coefficients of one transition curve.
type Curve struct {
	A, B, C float64
}

// ShapeParams are the offline-fitted coefficients of the gamma (slope) and
// delta (midpoint) curves. Values are never mutated after loading.
type ShapeParams struct {
	Gamma Curve
	Delta Curve
}

// GammaAt returns a/(rate+b) + c.
func (p ShapeParams) GammaAt(rate float64) float64 {
	return p.Gamma.A/(rate+p.Gamma.B) + p.Gamma.C
}

// DeltaAt returns a*ln(rate+b) + c.
func (p ShapeParams) DeltaAt(rate float64) float64 {
	return p.Delta.A*math.Log(rate+p.Delta.B) + p.Delta.C
}

// DefaultShapeParams returns the coefficients published with the analytic
// model. Callers must opt in explicitly; loaders never fall back to them.
func DefaultShapeParams() *ShapeParams {
	return &ShapeParams{
		Gamma: Curve{A: 6.074, B: 7.299, C: 1.870},
		// 0.396*log10(x) expressed in natural log.
		Delta: Curve{A: 0.396 / math.Ln10, B: 1.506, C: 0.367},
	}
}

type curveFile struct {
	Params []float64 `json:"params"`
}

type shapeParamsFile struct {
	Gamma curveFile `json:"gamma"`
	Delta curveFile `json:"delta"`
}

func (f shapeParamsFile) toParams() *ShapeParams {
	g, d := f.Gamma.Params, f.Delta.Params
	return &ShapeParams{
		Gamma: Curve{A: g[0], B: g[1], C: g[2]},
		Delta: Curve{A: d[0], B: d[1], C: d[2]},
	}
}

// MarshalJSON writes the persisted {"gamma": {"params": [...]}} layout.
func (p ShapeParams) MarshalJSON() ([]byte, error) {
	return json.Marshal(shapeParamsFile{
		Gamma: curveFile{Params: []float64{p.Gamma.A, p.Gamma.B, p.Gamma.C}},
		Delta: curveFile{Params: []float64{p.Delta.A, p.Delta.B, p.Delta.C}},
	})
}

// LoadShapeParams reads a shape-parameter file. The format is chosen by
// extension: .json, .yaml/.yml or .toml.
func LoadShapeParams(path string) (*ShapeParams, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrShapeParamsNotFound)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrShapeParamsNotFound, path)
		}
		return nil, fmt.Errorf("reading shape parameters: %w", err)
	}
	return ParseShapeParams(data, strings.ToLower(filepath.Ext(path)))
}

// ParseShapeParams decodes data in the format named by ext (".json",
// ".yaml", ".yml" or ".toml") and validates it against the shape-parameter
// schema.
func ParseShapeParams(data []byte, ext string) (*ShapeParams, error) {
	var doc any
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: decode JSON: %v", ErrInvalidShapeParams, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: decode YAML: %v", ErrInvalidShapeParams, err)
		}
	case ".toml":
		var m map[string]any
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, fmt.Errorf("%w: decode TOML: %v", ErrInvalidShapeParams, err)
		}
		doc = m
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidShapeParams, ext)
	}

	// Round-trip through JSON so YAML/TOML integers and maps look like
	// JSON values to the validator.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShapeParams, err)
	}
	var instance any
	if err := json.Unmarshal(normalized, &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShapeParams, err)
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShapeParams, err)
	}

	var f shapeParamsFile
	if err := json.Unmarshal(normalized, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShapeParams, err)
	}
	return f.toParams(), nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(shapeParamsSchemaURL, bytes.NewReader([]byte(shapeParamsSchema))); err != nil {
		return nil, fmt.Errorf("add shape-parameter schema: %w", err)
	}
	schema, err := compiler.Compile(shapeParamsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile shape-parameter schema: %w", err)
	}
	return schema, nil
}
