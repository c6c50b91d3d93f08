package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/waivern/orchestrator/types"
)

// DefaultBasePath is used when a Filesystem store is constructed without
// an explicit base path, matching the CLI default and WAIVERN_STORE_PATH
// fallback.
const DefaultBasePath = ".waivern"

// Filesystem persists artifacts, execution state, and run metadata under
// <base>/runs/<run_id>/{artifacts/<id>.json, _system/{state.json,run.json}}.
// Every write goes through a temp-file-then-rename so a crash mid-write
// can never leave a partially-written file readable.
type Filesystem struct {
	base string
}

// NewFilesystem creates a Filesystem store rooted at base. The directory
// is created lazily on first write.
func NewFilesystem(base string) *Filesystem {
	if base == "" {
		base = DefaultBasePath
	}
	return &Filesystem{base: base}
}

func (f *Filesystem) runDir(runID string) (string, error) {
	if err := SanitizeKey(runID); err != nil {
		return "", err
	}
	return filepath.Join(f.base, "runs", runID), nil
}

func (f *Filesystem) artifactPath(runID, id string) (string, error) {
	if err := SanitizeKey(id); err != nil {
		return "", err
	}
	runDir, err := f.runDir(runID)
	if err != nil {
		return "", err
	}
	// id may be hierarchical ("a/b/c"); filepath.Join normalizes
	// separators and SanitizeKey has already rejected ".."/absolute
	// segments, so the joined path cannot escape runDir.
	return filepath.Join(append([]string{runDir, "artifacts"}, strings.Split(id, "/")...)...) + ".json", nil
}

func (f *Filesystem) systemPath(runID, name string) (string, error) {
	runDir, err := f.runDir(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(runDir, "_system", name), nil
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial write.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (f *Filesystem) SaveArtifact(_ context.Context, runID, id string, msg types.Message) error {
	path, err := f.artifactPath(runID, id)
	if err != nil {
		return storeErr("save_artifact", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return storeErr("save_artifact", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return storeErr("save_artifact", err)
	}
	return nil
}

func (f *Filesystem) GetArtifact(_ context.Context, runID, id string) (types.Message, error) {
	path, err := f.artifactPath(runID, id)
	if err != nil {
		return types.Message{}, storeErr("get_artifact", err)
	}
	var msg types.Message
	if err := readJSON(path, &msg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.Message{}, notFound(runID, id)
		}
		return types.Message{}, storeErr("get_artifact", err)
	}
	return msg, nil
}

func (f *Filesystem) ArtifactExists(_ context.Context, runID, id string) (bool, error) {
	path, err := f.artifactPath(runID, id)
	if err != nil {
		return false, storeErr("artifact_exists", err)
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, storeErr("artifact_exists", err)
}

func (f *Filesystem) DeleteArtifact(_ context.Context, runID, id string) error {
	path, err := f.artifactPath(runID, id)
	if err != nil {
		return storeErr("delete_artifact", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return storeErr("delete_artifact", err)
	}
	return nil
}

func (f *Filesystem) ListArtifacts(_ context.Context, runID string) ([]string, error) {
	runDir, err := f.runDir(runID)
	if err != nil {
		return nil, storeErr("list_artifacts", err)
	}
	artifactsDir := filepath.Join(runDir, "artifacts")

	var out []string
	err = filepath.WalkDir(artifactsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".json") {
			return nil
		}
		rel, err := filepath.Rel(artifactsDir, path)
		if err != nil {
			return err
		}
		id := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		out = append(out, id)
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, storeErr("list_artifacts", err)
	}
	sort.Strings(out)
	return out, nil
}

func (f *Filesystem) ClearArtifacts(_ context.Context, runID string) error {
	runDir, err := f.runDir(runID)
	if err != nil {
		return storeErr("clear_artifacts", err)
	}
	artifactsDir := filepath.Join(runDir, "artifacts")
	if err := os.RemoveAll(artifactsDir); err != nil {
		return storeErr("clear_artifacts", err)
	}
	return nil
}

func (f *Filesystem) SaveExecutionState(_ context.Context, runID string, state types.ExecutionState) error {
	path, err := f.systemPath(runID, "state.json")
	if err != nil {
		return storeErr("save_execution_state", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return storeErr("save_execution_state", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return storeErr("save_execution_state", err)
	}
	return nil
}

func (f *Filesystem) LoadExecutionState(_ context.Context, runID string) (types.ExecutionState, error) {
	path, err := f.systemPath(runID, "state.json")
	if err != nil {
		return types.ExecutionState{}, storeErr("load_execution_state", err)
	}
	var state types.ExecutionState
	if err := readJSON(path, &state); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.ExecutionState{}, notFound(runID, "_system/state")
		}
		return types.ExecutionState{}, storeErr("load_execution_state", err)
	}
	return state, nil
}

func (f *Filesystem) SaveRunMetadata(_ context.Context, runID string, meta types.RunMetadata) error {
	path, err := f.systemPath(runID, "run.json")
	if err != nil {
		return storeErr("save_run_metadata", err)
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return storeErr("save_run_metadata", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return storeErr("save_run_metadata", err)
	}
	return nil
}

func (f *Filesystem) LoadRunMetadata(_ context.Context, runID string) (types.RunMetadata, error) {
	path, err := f.systemPath(runID, "run.json")
	if err != nil {
		return types.RunMetadata{}, storeErr("load_run_metadata", err)
	}
	var meta types.RunMetadata
	if err := readJSON(path, &meta); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.RunMetadata{}, notFound(runID, "_system/run")
		}
		return types.RunMetadata{}, storeErr("load_run_metadata", err)
	}
	return meta, nil
}

func (f *Filesystem) ListRuns(_ context.Context) ([]string, error) {
	runsDir := filepath.Join(f.base, "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, storeErr("list_runs", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *Filesystem) Close() error { return nil }
