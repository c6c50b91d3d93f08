package planner

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/waivern/orchestrator/types"
)

// Parse decodes a runbook YAML document and validates its shape (stage a
// of planning). sourcePath is recorded on the result so later
// child_runbook path resolution is relative to the file it came from;
// pass "" for in-memory runbooks (tests).
//
// Decoding is strict: an unrecognized top-level, config, input, or
// artifact key fails with ParseError naming the offending field — this
// is also how the legacy "schema" key on an input declaration is
// rejected in favor of "input_schema" (Open Question 1).
func Parse(data []byte, sourcePath string) (*types.Runbook, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var rb types.Runbook
	if err := dec.Decode(&rb); err != nil {
		return nil, parseErr("decoding runbook: %v", err)
	}
	rb.SourcePath = sourcePath

	if err := ValidateShape(&rb); err != nil {
		return nil, err
	}
	return &rb, nil
}

// ValidateShape enforces the structural invariants spec.md §4.2(a)
// requires beyond what the YAML struct tags already check.
func ValidateShape(rb *types.Runbook) error {
	if rb.Name == "" {
		return parseErr("runbook name must be non-empty")
	}
	if len(rb.Artifacts) == 0 {
		return parseErr("runbook %q must declare at least one artifact", rb.Name)
	}

	isChild := len(rb.Inputs) > 0

	for id, a := range rb.Artifacts {
		if err := validateArtifactShape(id, a, isChild); err != nil {
			return err
		}
	}

	for _, outputArtifact := range rb.Outputs {
		if _, ok := rb.Artifacts[outputArtifact]; !ok {
			return parseErr("runbook %q outputs entry names non-existent artifact %q", rb.Name, outputArtifact)
		}
	}

	return nil
}

func validateArtifactShape(id string, a types.ArtifactDefinition, isChild bool) error {
	methods := 0
	if a.Source != nil {
		methods++
	}
	if len(a.Inputs) > 0 || a.Process != nil {
		methods++
	}
	if a.Reuse != nil {
		methods++
	}
	if a.ChildRunbook != nil {
		methods++
	}
	if methods != 1 {
		return parseErr("artifact %q must use exactly one production method (source | inputs+process | reuse | child_runbook), found %d", id, methods)
	}

	if isChild && a.Source != nil {
		return parseErr("artifact %q uses source, but this runbook declares inputs and so may not produce any source artifact", id)
	}

	if a.ChildRunbook != nil {
		if len(a.ChildRunbook.InputMapping) == 0 {
			return parseErr("artifact %q is a child_runbook but supplies no input_mapping", id)
		}
		if a.Source != nil || a.Process != nil {
			return parseErr("artifact %q is a child_runbook and must not also supply source or process", id)
		}
		if a.ChildRunbook.Output == "" && len(a.ChildRunbook.OutputMapping) == 0 {
			return parseErr("artifact %q is a child_runbook but names neither output nor output_mapping", id)
		}
	}

	if a.Merge != "" && types.MergeStrategy(a.Merge) != types.MergeConcatenate {
		return parseErr("artifact %q has unsupported merge strategy %q (only %q is implemented)", id, a.Merge, types.MergeConcatenate)
	}

	return nil
}
