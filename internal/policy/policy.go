// Package policy is the structural gate in front of the rewrite: rego rules
// decide whether the extracted layer model matches the shape this tool knows
// how to transform. Error-severity violations abort the run before any
// mutation; warnings travel into the change log.
package policy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

//go:embed structure.rego
var policyFS embed.FS

// Engine evaluates the structural policy against a layer model
type Engine struct {
	queries map[string]rego.PreparedEvalQuery
}

// Violation represents a policy violation
type Violation struct {
	Rule       string `json:"rule"`
	Severity   string `json:"severity"`
	Identifier string `json:"identifier,omitempty"`
	Message    string `json:"message"`
}

func (v Violation) String() string {
	if v.Identifier != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", v.Severity, v.Rule, v.Message, v.Identifier)
	}
	return fmt.Sprintf("[%s] %s: %s", v.Severity, v.Rule, v.Message)
}

// Result contains the evaluation results
type Result struct {
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
}

// Summary provides aggregate counts
type Summary struct {
	TotalViolations int `json:"total_violations"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
}

// Errors returns only the fatal violations
func (r *Result) Errors() []Violation {
	var errs []Violation
	for _, v := range r.Violations {
		if v.Severity == "error" {
			errs = append(errs, v)
		}
	}
	return errs
}

// New creates a new policy engine from the embedded structure rules
func New() (*Engine, error) {
	engine := &Engine{
		queries: make(map[string]rego.PreparedEvalQuery),
	}

	content, err := policyFS.ReadFile("structure.rego")
	if err != nil {
		return nil, fmt.Errorf("loading embedded policy: %w", err)
	}
	module := rego.Module("structure.rego", string(content))

	query, err := rego.New(module, rego.Query("data.leaflet.structure.all_violations")).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("preparing violations query: %w", err)
	}
	engine.queries["violations"] = query

	query, err = rego.New(module, rego.Query("data.leaflet.structure.summary")).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("preparing summary query: %w", err)
	}
	engine.queries["summary"] = query

	return engine, nil
}

// Evaluate runs the structural rules against the layer model
func (e *Engine) Evaluate(input interface{}) (*Result, error) {
	ctx := context.Background()

	inputMap, err := structToMap(input)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	result := &Result{}

	rs, err := e.queries["violations"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating violations: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		violations, ok := rs[0].Expressions[0].Value.([]interface{})
		if ok {
			for _, v := range violations {
				vmap, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				result.Violations = append(result.Violations, Violation{
					Rule:       getString(vmap, "rule"),
					Severity:   getString(vmap, "severity"),
					Identifier: getString(vmap, "identifier"),
					Message:    getString(vmap, "message"),
				})
			}
		}
	}

	rs, err = e.queries["summary"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating summary: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		smap, ok := rs[0].Expressions[0].Value.(map[string]interface{})
		if ok {
			result.Summary = Summary{
				TotalViolations: getInt(smap, "total_violations"),
				Errors:          getInt(smap, "errors"),
				Warnings:        getInt(smap, "warnings"),
			}
		}
	}

	return result, nil
}

// Helper functions
func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	err = json.Unmarshal(data, &result)
	return result, err
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case json.Number:
			i, _ := n.Int64()
			return int(i)
		}
	}
	return 0
}
