package planner

import (
	"fmt"

	"github.com/waivern/orchestrator/types"
)

func parseErr(format string, args ...any) error {
	return types.NewError(types.ErrParse, fmt.Sprintf(format, args...))
}

func childNotFoundErr(path string, searched []string) error {
	return types.NewError(types.ErrChildRunbookNotFound,
		fmt.Sprintf("child runbook %q not found", path), searched...)
}

func childInvalidErr(path string, cause error) error {
	return types.NewError(types.ErrChildRunbookInvalid,
		fmt.Sprintf("child runbook %q is invalid: %v", path, cause))
}

func circularErr(cycle []string) error {
	return types.NewError(types.ErrCircularRunbook,
		"child runbook expansion revisits a path already on the stack", cycle...)
}

func invalidPathErr(path string) error {
	return types.NewError(types.ErrInvalidPath,
		fmt.Sprintf("child_runbook.path %q must be relative and contain no \"..\" segments", path))
}

func missingInputMappingErr(childPath, input string) error {
	return types.NewError(types.ErrMissingInputMapping,
		fmt.Sprintf("child runbook %q declares input %q with no entry in input_mapping", childPath, input))
}

func unknownInputMappingErr(childPath, key string) error {
	return types.NewError(types.ErrUnknownInputMapping,
		fmt.Sprintf("child runbook %q has no declared input %q named in input_mapping", childPath, key))
}

func invalidOutputMappingErr(childPath, name string) error {
	return types.NewError(types.ErrInvalidOutputMapping,
		fmt.Sprintf("child runbook %q has no artifact %q named in output/output_mapping", childPath, name))
}

func danglingReferenceErr(artifactID, ref string) error {
	return types.NewError(types.ErrParse,
		fmt.Sprintf("artifact %q references %q, which does not exist after flattening", artifactID, ref))
}

func cyclicDependencyErr(cycle []string) error {
	return types.NewError(types.ErrCyclicDependency,
		"artifact dependency graph contains a cycle", cycle...)
}

func ambiguousOutputSchemaErr(artifactID, producerName string, options []types.Schema) error {
	detail := make([]string, 0, len(options))
	for _, o := range options {
		detail = append(detail, string(o))
	}
	return types.NewError(types.ErrParse,
		fmt.Sprintf("artifact %q: producer %q declares more than one output schema; set output_schema to disambiguate", artifactID, producerName),
		detail...)
}

func schemaIncompatibleErr(producer, consumer string, produced types.Schema) error {
	return types.NewError(types.ErrSchemaIncompatible,
		fmt.Sprintf("artifact %q output schema %q is not accepted by consumer %q", producer, produced, consumer))
}

func producerNotFoundErr(kind, typ string) error {
	return types.NewError(types.ErrProducerNotFound,
		fmt.Sprintf("no %s registered for type %q", kind, typ))
}
