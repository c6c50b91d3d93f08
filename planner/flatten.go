package planner

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/waivern/orchestrator/types"
)

// flattenResult is the outcome of expanding every child_runbook in a
// parsed runbook into a single flat artifact namespace.
type flattenResult struct {
	artifacts       map[string]types.ArtifactDefinition
	aliases         map[string]string
	reversedAliases map[string]string
	sensitiveInputs map[string]bool
}

// expansionJob is one unit of work on the flatten queue: a single
// child_runbook placeholder artifact waiting to be resolved and spliced
// into the flat artifact set.
type expansionJob struct {
	placeholderID string
	spec          *types.ChildRunbookSpec

	// parentDir and parentTemplatePaths resolve the job's relative path.
	parentDir           string
	parentTemplatePaths []string

	// ancestry is the chain of resolved child-runbook file paths from the
	// root to (and including) the runbook that declared this job, used to
	// detect a child runbook that expands itself, directly or indirectly.
	ancestry []string

	// inboundInputs resolves a declared-input name of the runbook that
	// declared this job to the flat artifact id (or pass-through name)
	// supplying it, so input_mapping values naming that runbook's own
	// declared input (rather than one of its concrete artifacts) chain
	// through correctly.
	inboundInputs map[string]string

	// inboundSensitive mirrors inboundInputs: whether the named input was
	// itself sensitive further up the chain.
	inboundSensitive map[string]bool
}

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func sanitizeRunbookName(name string) string {
	s := nameSanitizer.ReplaceAllString(strings.TrimSpace(name), "_")
	if s == "" {
		return "runbook"
	}
	return s
}

// flatten expands every child_runbook artifact in root into a single
// namespace, iteratively via an explicit queue (no call-stack recursion,
// so nesting depth is unbounded). See spec.md §4.2(b).
func flatten(root *types.Runbook, loader Loader) (*flattenResult, error) {
	artifacts := make(map[string]types.ArtifactDefinition, len(root.Artifacts))
	for id, a := range root.Artifacts {
		artifacts[id] = a
	}

	aliases := make(map[string]string)
	reversedAliases := make(map[string]string)
	sensitiveInputs := make(map[string]bool)

	rootPath := root.SourcePath
	if rootPath == "" {
		rootPath = "<root>"
	}

	var queue []expansionJob
	for id, a := range root.Artifacts {
		if a.ChildRunbook != nil {
			queue = append(queue, expansionJob{
				placeholderID:       id,
				spec:                a.ChildRunbook,
				parentDir:           filepath.Dir(rootPath),
				parentTemplatePaths: root.Config.TemplatePaths,
				ancestry:            []string{rootPath},
			})
		}
	}

	for len(queue) > 0 {
		job := queue[0]
		queue = queue[1:]

		resolvedPath, data, searched, err := resolveChildPath(loader, job.spec.Path, job.parentDir, job.parentTemplatePaths)
		if err != nil {
			return nil, err
		}
		if resolvedPath == "" {
			return nil, childNotFoundErr(job.spec.Path, searched)
		}
		for _, seen := range job.ancestry {
			if seen == resolvedPath {
				return nil, circularErr(append(append([]string{}, job.ancestry...), resolvedPath))
			}
		}

		child, err := Parse(data, resolvedPath)
		if err != nil {
			return nil, childInvalidErr(job.spec.Path, err)
		}
		if err := validateInputMapping(job.spec, child); err != nil {
			return nil, err
		}

		namespace := fmt.Sprintf("%s__%s__", sanitizeRunbookName(child.Name), uuid.New().String()[:8])
		namespaced := make(map[string]string, len(child.Artifacts))
		for id := range child.Artifacts {
			namespaced[id] = namespace + id
		}

		// childInputSensitive resolves each of the child's own declared
		// input names to whether that input carries through as sensitive,
		// combining the child's own `sensitive: true` flag with whatever
		// sensitivity the parent-visible name (via input_mapping) already
		// carried further up the chain.
		childInputSensitive := make(map[string]bool, len(child.Inputs))
		for childInputName := range child.Inputs {
			parentName := job.spec.InputMapping[childInputName]
			sensitive := job.inboundSensitive[parentName]
			if decl, ok := child.Inputs[childInputName]; ok {
				sensitive = sensitive || decl.Sensitive
			}
			childInputSensitive[childInputName] = sensitive
		}

		childDir := filepath.Dir(resolvedPath)
		childAncestry := append(append([]string{}, job.ancestry...), resolvedPath)

		// visibleSensitive is consulted by any nested child_runbook's
		// input_mapping values: they may name either one of this child's
		// own artifact ids (backed by directSensitive, filled in below via
		// map reference semantics before the job is dequeued) or one of
		// this child's own declared input names (backed by
		// childInputSensitive directly).
		directSensitive := make(map[string]bool, len(child.Artifacts))
		visibleSensitive := make(map[string]bool, len(child.Artifacts)+len(childInputSensitive))
		for name, sensitive := range childInputSensitive {
			visibleSensitive[name] = sensitive
		}
		for id, a := range child.Artifacts {
			if a.ChildRunbook != nil {
				queue = append(queue, expansionJob{
					placeholderID:       namespaced[id],
					spec:                a.ChildRunbook,
					parentDir:           childDir,
					parentTemplatePaths: child.Config.TemplatePaths,
					ancestry:            childAncestry,
					inboundInputs:       namespaced,
					inboundSensitive:    visibleSensitive,
				})
				continue
			}
			rewritten, usedSensitive, err := rewriteArtifact(a, job.spec.InputMapping, namespaced, job.inboundInputs, childInputSensitive)
			if err != nil {
				return nil, err
			}
			artifacts[namespaced[id]] = rewritten
			if usedSensitive {
				directSensitive[id] = true
			}
		}

		// Propagate sensitivity across child-internal edges to a fixed
		// point: a node consuming a sensitive child-internal artifact is
		// itself sensitive.
		for changed := true; changed; {
			changed = false
			for id, a := range child.Artifacts {
				if directSensitive[id] || a.ChildRunbook != nil {
					continue
				}
				for _, ref := range a.Inputs {
					if directSensitive[ref] {
						directSensitive[id] = true
						changed = true
						break
					}
				}
			}
		}
		for id, sensitive := range directSensitive {
			if sensitive {
				sensitiveInputs[namespaced[id]] = true
				visibleSensitive[id] = true
			}
		}

		jobAliases, err := resolveOutputAliases(job.spec, child, namespaced, job.placeholderID)
		if err != nil {
			return nil, err
		}
		for parentName, target := range jobAliases {
			aliases[parentName] = target
			reversedAliases[target] = parentName
		}

		delete(artifacts, job.placeholderID)
		for parentName, target := range jobAliases {
			rewriteReferences(artifacts, parentName, target)
		}
	}

	return &flattenResult{
		artifacts:       artifacts,
		aliases:         aliases,
		reversedAliases: reversedAliases,
		sensitiveInputs: sensitiveInputs,
	}, nil
}

// resolveChildPath resolves spec's path relative to dir, or by searching
// templatePaths in order if not found relative to dir. Absolute paths and
// paths containing ".." are rejected outright. A candidate "exists" if
// loader can load it, so an in-memory Loader works the same as
// FileLoader without a separate filesystem existence probe.
func resolveChildPath(loader Loader, raw, dir string, templatePaths []string) (resolved string, data []byte, searched []string, err error) {
	if filepath.IsAbs(raw) {
		return "", nil, nil, invalidPathErr(raw)
	}
	for _, part := range strings.Split(filepath.ToSlash(raw), "/") {
		if part == ".." {
			return "", nil, nil, invalidPathErr(raw)
		}
	}

	candidate := filepath.Join(dir, raw)
	searched = append(searched, candidate)
	if d, loadErr := loader.Load(candidate); loadErr == nil {
		return candidate, d, searched, nil
	}

	for _, tp := range templatePaths {
		candidate = filepath.Join(tp, raw)
		searched = append(searched, candidate)
		if d, loadErr := loader.Load(candidate); loadErr == nil {
			return candidate, d, searched, nil
		}
	}

	return "", nil, searched, nil
}

func validateInputMapping(spec *types.ChildRunbookSpec, child *types.Runbook) error {
	for name, decl := range child.Inputs {
		if decl.Optional {
			continue
		}
		if _, ok := spec.InputMapping[name]; !ok {
			return missingInputMappingErr(spec.Path, name)
		}
	}
	for name := range spec.InputMapping {
		if _, ok := child.Inputs[name]; !ok {
			return unknownInputMappingErr(spec.Path, name)
		}
	}
	return nil
}

// rewriteArtifact copies a child artifact's definition, rewriting every
// input reference: a reference to a declared input of the child is
// rewritten to the parent-visible name in input_mapping (further resolved
// through inboundInputs if the parent is itself mid-expansion); a
// reference to another child-internal artifact is rewritten to its
// namespaced id. It also reports whether any reference resolved through a
// sensitive declared input.
func rewriteArtifact(a types.ArtifactDefinition, inputMapping, namespaced, inboundInputs map[string]string, childInputSensitive map[string]bool) (types.ArtifactDefinition, bool, error) {
	out := a
	usedSensitive := false
	if len(a.Inputs) > 0 {
		rewritten := make(types.StringOrList, 0, len(a.Inputs))
		for _, ref := range a.Inputs {
			resolved, sensitive, err := resolveReference(ref, inputMapping, namespaced, inboundInputs, childInputSensitive)
			if err != nil {
				return out, false, err
			}
			rewritten = append(rewritten, resolved)
			usedSensitive = usedSensitive || sensitive
		}
		out.Inputs = rewritten
	}
	return out, usedSensitive, nil
}

func resolveReference(ref string, inputMapping, namespaced, inboundInputs map[string]string, childInputSensitive map[string]bool) (string, bool, error) {
	if ns, ok := namespaced[ref]; ok {
		return ns, false, nil
	}
	if parentName, ok := inputMapping[ref]; ok {
		sensitive := childInputSensitive[ref]
		if resolved, ok := inboundInputs[parentName]; ok {
			return resolved, sensitive, nil
		}
		return parentName, sensitive, nil
	}
	return ref, false, nil
}

// resolveOutputAliases computes the parent_name -> namespaced_id aliases
// a single child expansion contributes: placeholderID aliases to
// spec.Output (resolved through child.Outputs), and each spec.OutputMapping
// key aliases to its own resolved child output.
func resolveOutputAliases(spec *types.ChildRunbookSpec, child *types.Runbook, namespaced map[string]string, placeholderID string) (map[string]string, error) {
	out := make(map[string]string)
	resolve := func(parentName, childOutputName string) error {
		artifactID, ok := child.Outputs[childOutputName]
		if !ok {
			return invalidOutputMappingErr(spec.Path, childOutputName)
		}
		target, ok := namespaced[artifactID]
		if !ok {
			return invalidOutputMappingErr(spec.Path, childOutputName)
		}
		out[parentName] = target
		return nil
	}

	if spec.Output != "" {
		if err := resolve(placeholderID, spec.Output); err != nil {
			return nil, err
		}
	}
	for parentName, childOutputName := range spec.OutputMapping {
		if err := resolve(parentName, childOutputName); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rewriteReferences replaces every occurrence of oldRef in every
// artifact's Inputs with newRef, across the whole flat artifact set built
// so far. Used once a child expansion's aliases are known, so sibling
// artifacts that referenced the placeholder (or an output_mapping name)
// by its pre-expansion name now point at the namespaced node.
func rewriteReferences(artifacts map[string]types.ArtifactDefinition, oldRef, newRef string) {
	if newRef == "" {
		return
	}
	for id, a := range artifacts {
		if len(a.Inputs) == 0 {
			continue
		}
		changed := false
		next := make(types.StringOrList, len(a.Inputs))
		for i, ref := range a.Inputs {
			if ref == oldRef {
				next[i] = newRef
				changed = true
			} else {
				next[i] = ref
			}
		}
		if changed {
			a.Inputs = next
			artifacts[id] = a
		}
	}
}

