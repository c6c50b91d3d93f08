package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/types"
)

func TestFileConnector_Produce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.json")
	if err := os.WriteFile(path, []byte(`{"rows":[1,2,3]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewFileConnector(types.Schema("raw_events"))
	msg, err := c.Produce(context.Background(), producer.Context{Properties: map[string]any{"path": path}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Schema != types.Schema("raw_events") {
		t.Errorf("schema = %q, want raw_events", msg.Schema)
	}

	content, ok := msg.Content.(map[string]any)
	if !ok {
		t.Fatalf("content type = %T, want map[string]any", msg.Content)
	}
	rows, ok := content["rows"].([]any)
	if !ok || len(rows) != 3 {
		t.Errorf("rows = %v, want [1 2 3]", content["rows"])
	}
}

func TestFileConnector_MissingPath(t *testing.T) {
	c := NewFileConnector(types.Schema("raw_events"))
	_, err := c.Produce(context.Background(), producer.Context{}, nil)
	if err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestFileConnector_FileNotFound(t *testing.T) {
	c := NewFileConnector(types.Schema("raw_events"))
	_, err := c.Produce(context.Background(), producer.Context{Properties: map[string]any{"path": "/nonexistent/file.json"}}, nil)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFileConnector_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`not json`), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewFileConnector(types.Schema("raw_events"))
	_, err := c.Produce(context.Background(), producer.Context{Properties: map[string]any{"path": path}}, nil)
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFileConnector_Declarations(t *testing.T) {
	c := NewFileConnector(types.Schema("raw_events"))
	if c.Name() != "file" {
		t.Errorf("Name() = %q, want file", c.Name())
	}
	if got := c.SupportedOutputSchemas(); len(got) != 1 || got[0] != types.Schema("raw_events") {
		t.Errorf("SupportedOutputSchemas() = %v", got)
	}
	if got := c.SupportedInputSchemas(); got != nil {
		t.Errorf("SupportedInputSchemas() = %v, want nil", got)
	}
}
