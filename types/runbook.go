package types

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Runbook is a parsed pipeline description. Once parsed it is treated as
// immutable; the planner produces namespaced copies during flattening
// rather than mutating a shared instance.
type Runbook struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Contact     string `yaml:"contact,omitempty"`

	Config RunbookConfig `yaml:"config,omitempty"`

	// Inputs declares external inputs. A non-empty Inputs makes this a
	// child runbook: it may not contain any Source artifacts.
	Inputs map[string]InputDeclaration `yaml:"inputs,omitempty"`

	// Outputs names artifacts visible to a parent runbook when this one
	// is expanded as a child.
	Outputs map[string]string `yaml:"outputs,omitempty"`

	Artifacts map[string]ArtifactDefinition `yaml:"artifacts"`

	// SourcePath is the filesystem path this runbook was parsed from.
	// Empty for runbooks constructed in-memory (e.g. in tests). Used to
	// resolve child_runbook paths relative to the parent file.
	SourcePath string `yaml:"-"`
}

// RunbookConfig holds the optional config block of a runbook.
type RunbookConfig struct {
	TimeoutSeconds  int      `yaml:"timeout_seconds,omitempty"`
	CostLimit       float64  `yaml:"cost_limit,omitempty"`
	MaxConcurrency  int      `yaml:"max_concurrency,omitempty"`
	TemplatePaths   []string `yaml:"template_paths,omitempty"`
}

// DefaultMaxConcurrency is used when a runbook's config omits
// max_concurrency.
const DefaultMaxConcurrency = 10

// EffectiveMaxConcurrency returns MaxConcurrency, or DefaultMaxConcurrency
// if unset.
func (c RunbookConfig) EffectiveMaxConcurrency() int {
	if c.MaxConcurrency <= 0 {
		return DefaultMaxConcurrency
	}
	return c.MaxConcurrency
}

// InputDeclaration describes one entry of a child runbook's declared
// inputs.
type InputDeclaration struct {
	// InputSchema is the authoritative schema-id field name for a
	// declared input. The legacy name "schema" is rejected at parse
	// time (planner.Parse decodes strictly, so it fails as an unknown
	// field) to avoid ambiguity with
	// the framework's own "schema" attribute.
	InputSchema string `yaml:"input_schema"`
	Optional    bool   `yaml:"optional,omitempty"`
	Sensitive   bool   `yaml:"sensitive,omitempty"`
}

// ArtifactDefinition describes how a single artifact is produced.
// Exactly one of Source, Inputs+Process, Reuse, or ChildRunbook must be
// set; ValidateShape enforces this.
type ArtifactDefinition struct {
	Source *SourceSpec `yaml:"source,omitempty"`

	Inputs  StringOrList `yaml:"inputs,omitempty"`
	Process *ProcessSpec `yaml:"process,omitempty"`
	Merge   string       `yaml:"merge,omitempty"`

	Reuse *ReuseSpec `yaml:"reuse,omitempty"`

	ChildRunbook *ChildRunbookSpec `yaml:"child_runbook,omitempty"`

	Output       bool   `yaml:"output,omitempty"`
	Optional     bool   `yaml:"optional,omitempty"`
	OutputSchema string `yaml:"output_schema,omitempty"`
}

// SourceSpec names a connector and its configuration properties.
type SourceSpec struct {
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties,omitempty"`
}

// ProcessSpec names a processor and its configuration properties.
type ProcessSpec struct {
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties,omitempty"`
}

// ReuseSpec copies a prior run's artifact into the current run.
type ReuseSpec struct {
	FromRun  string `yaml:"from_run"`
	Artifact string `yaml:"artifact"`
}

// ChildRunbookSpec expands a reusable child runbook into the parent. It is
// consumed entirely by the planner during flattening and never reaches
// the executor.
type ChildRunbookSpec struct {
	Path          string            `yaml:"path"`
	InputMapping  map[string]string `yaml:"input_mapping,omitempty"`
	Output        string            `yaml:"output,omitempty"`
	OutputMapping map[string]string `yaml:"output_mapping,omitempty"`
}

// MergeStrategy enumerates the accepted values of ArtifactDefinition.Merge.
type MergeStrategy string

// MergeConcatenate is the only merge strategy implemented in this version;
// any other non-empty value fails at plan time.
const MergeConcatenate MergeStrategy = "concatenate"

// StringOrList decodes either a single artifact id or an ordered list of
// ids from YAML, normalizing both to a slice.
type StringOrList []string

// UnmarshalYAML accepts a bare scalar or a sequence.
func (s *StringOrList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return fmt.Errorf("inputs must be a string or a list of strings: %w", err)
		}
		if single != "" {
			*s = StringOrList{single}
		} else {
			*s = nil
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return fmt.Errorf("inputs must be a string or a list of strings: %w", err)
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("inputs must be a string or a list of strings")
	}
}

// ProductionMethod enumerates how an artifact is produced, after
// flattening (child_runbook never appears post-flattening).
type ProductionMethod int

const (
	// ProductionUnknown indicates ValidateShape has not been run, or the
	// definition matched none of the known methods.
	ProductionUnknown ProductionMethod = iota
	ProductionSource
	ProductionProcess
	ProductionReuse
	ProductionChildRunbook
)

// Method classifies which production method this definition uses. It does
// not validate exclusivity — see ValidateShape.
func (a ArtifactDefinition) Method() ProductionMethod {
	switch {
	case a.ChildRunbook != nil:
		return ProductionChildRunbook
	case a.Source != nil:
		return ProductionSource
	case len(a.Inputs) > 0 || a.Process != nil:
		return ProductionProcess
	case a.Reuse != nil:
		return ProductionReuse
	default:
		return ProductionUnknown
	}
}
