package validator

// =============================================================================
// VALIDATOR PHILOSOPHY: CRASH EARLY, CRASH LOUD
// =============================================================================
//
// The CUE validator is the contract guard between the model builder and the
// code synthesizer.
//
// The synthesizer writes text straight into a live document. If a record
// reaches it with an empty display name, an out-of-range opacity or a
// negative span, the damage lands in the user's map file, not in a stack
// trace. The schema rejects such a model before any mutation is planned.
//
// WHEN VALIDATION FAILS:
// 1. DON'T suppress the error or add a workaround
// 2. DON'T loosen schema.cue without understanding why
// 3. DO trace back: extractor bug? resolver bug? builder bug?
// =============================================================================

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaFS embed.FS

// Validator validates the built layer model against the CUE schema contract
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// New creates a new Validator with the embedded CUE schema
func New() (*Validator, error) {
	ctx := cuecontext.New()

	schemaBytes, err := schemaFS.ReadFile("schema.cue")
	if err != nil {
		return nil, fmt.Errorf("loading embedded schema: %w", err)
	}

	schema := ctx.CompileBytes(schemaBytes)
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema: %w", schema.Err())
	}

	return &Validator{
		ctx:    ctx,
		schema: schema,
	}, nil
}

// Validate checks that the layer model conforms to the #LayerModel schema.
// Returns nil if valid, or a detailed error explaining what failed.
func (v *Validator) Validate(data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling model to JSON: %w", err)
	}

	dataValue := v.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return fmt.Errorf("compiling model as CUE: %w", dataValue.Err())
	}

	modelDef := v.schema.LookupPath(cue.ParsePath("#LayerModel"))
	if modelDef.Err() != nil {
		return fmt.Errorf("looking up #LayerModel definition: %w", modelDef.Err())
	}

	unified := modelDef.Unify(dataValue)
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// ValidationErrors returns detailed information about all validation errors
func (v *Validator) ValidationErrors(data interface{}) []string {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return []string{fmt.Sprintf("marshal error: %v", err)}
	}

	dataValue := v.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return []string{fmt.Sprintf("compile error: %v", dataValue.Err())}
	}

	modelDef := v.schema.LookupPath(cue.ParsePath("#LayerModel"))
	if modelDef.Err() != nil {
		return []string{fmt.Sprintf("schema lookup error: %v", modelDef.Err())}
	}

	unified := modelDef.Unify(dataValue)
	err = unified.Validate()
	if err == nil {
		return nil
	}

	var errs []string
	for _, e := range errors.Errors(err) {
		errs = append(errs, e.Error())
	}
	return errs
}
