package validator

// =============================================================================
// VALIDATOR PHILOSOPHY: CRASH EARLY, CRASH LOUD
// =============================================================================
//
// The CUE schemas are the contract between the builder and everything that
// consumes its output: the C generator, the lint rules, the fact tables and
// anyone scripting against `dbcc lint --json`.
//
// Without validation, a renamed JSON field or an out-of-range start bit
// slips through:
// - lint rules see `undefined` and never fire
// - generated C shifts by a nonsense amount
// - the bug surfaces on a bench, far from the cause
//
// With validation the run stops with the offending path, e.g.
// "messages.0.signals.1.length: invalid value 0 (out of bound >=1)".
//
// WHEN VALIDATION FAILS:
// 1. DON'T loosen the schema to make the error go away
// 2. DO trace back: parser bug? builder bug? a model field without a tag?
// 3. DO fix at the source and add a builder test for the input
// =============================================================================

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue output_schema.cue facts_schema.cue
var schemaFS embed.FS

// contract is one compiled schema file and the definition data must satisfy.
type contract struct {
	ctx    *cue.Context
	schema cue.Value
	def    string
	what   string
}

func load(file, def, what string) (*contract, error) {
	ctx := cuecontext.New()

	schemaBytes, err := schemaFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("loading embedded %s schema: %w", what, err)
	}

	schema := ctx.CompileBytes(schemaBytes, cue.Filename(file))
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling %s schema: %w", what, schema.Err())
	}
	if d := schema.LookupPath(cue.ParsePath(def)); d.Err() != nil {
		return nil, fmt.Errorf("looking up %s definition: %w", def, d.Err())
	}

	return &contract{ctx: ctx, schema: schema, def: def, what: what}, nil
}

func (c *contract) unify(jsonBytes []byte) (cue.Value, error) {
	dataValue := c.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return cue.Value{}, fmt.Errorf("compiling %s as CUE: %w", c.what, dataValue.Err())
	}
	return c.schema.LookupPath(cue.ParsePath(c.def)).Unify(dataValue), nil
}

func (c *contract) validateJSON(jsonBytes []byte) error {
	unified, err := c.unify(jsonBytes)
	if err != nil {
		return err
	}
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s schema validation failed: %w", c.what, err)
	}
	return nil
}

func (c *contract) validate(data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s to JSON: %w", c.what, err)
	}
	return c.validateJSON(jsonBytes)
}

// Validator validates built databases against the model contract.
// A database that does not match is rejected before any code is generated.
type Validator struct {
	c *contract
}

// New creates a new Validator with the embedded CUE schema
func New() (*Validator, error) {
	c, err := load("schema.cue", "#Input", "database")
	if err != nil {
		return nil, err
	}
	return &Validator{c: c}, nil
}

// Validate checks that the database conforms to the CUE schema.
// Returns nil if valid, or a detailed error explaining what failed.
func (v *Validator) Validate(data interface{}) error {
	return v.c.validate(data)
}

// ValidateJSON validates JSON bytes directly against the schema
func (v *Validator) ValidateJSON(jsonBytes []byte) error {
	return v.c.validateJSON(jsonBytes)
}

// ValidationErrors returns every validation error, one per offending path
func (v *Validator) ValidationErrors(data interface{}) []string {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return []string{fmt.Sprintf("marshal error: %v", err)}
	}

	unified, err := v.c.unify(jsonBytes)
	if err != nil {
		return []string{err.Error()}
	}
	err = unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs []string
	for _, e := range errors.Errors(err) {
		errs = append(errs, e.Error())
	}
	return errs
}

// OutputValidator validates lint output against the output schema
type OutputValidator struct {
	c *contract
}

// NewOutputValidator creates a validator for lint output
func NewOutputValidator() (*OutputValidator, error) {
	c, err := load("output_schema.cue", "#LintOutput", "output")
	if err != nil {
		return nil, err
	}
	return &OutputValidator{c: c}, nil
}

// Validate checks that the output data conforms to the output schema
func (v *OutputValidator) Validate(data interface{}) error {
	return v.c.validate(data)
}

// FactsValidator validates relational fact tables against the facts schema.
type FactsValidator struct {
	c *contract
}

// NewFactsValidator creates a validator for relational fact tables.
func NewFactsValidator() (*FactsValidator, error) {
	c, err := load("facts_schema.cue", "#FactTables", "facts")
	if err != nil {
		return nil, err
	}
	return &FactsValidator{c: c}, nil
}

// Validate checks that the fact tables conform to the facts schema.
func (v *FactsValidator) Validate(data interface{}) error {
	return v.c.validate(data)
}
