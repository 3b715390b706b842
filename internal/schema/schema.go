// Package schema validates scenario YAML against the embedded CUE schema.
//
// The harness's Go-side validation catches semantic problems (dependencies
// defined out of order, flag indices against the declared count); the CUE
// schema catches structural ones (unknown fields, wrong types, enum
// violations) with positioned error messages before a scenario ever runs.
package schema

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

//go:embed scenario.cue
var scenarioCUE string

// Validate checks scenario YAML against the #Scenario schema. The filename
// is used only for error positions. A nil return means the document is
// structurally valid; semantic validation still happens at parse time in the
// harness.
func Validate(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(scenarioCUE, cue.Filename("scenario.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("failed to resolve #Scenario: %w", err)
	}

	file, err := yaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("failed to build document: %w", err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return fmt.Errorf("scenario does not satisfy schema: %w", err)
	}
	return nil
}
