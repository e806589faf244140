package modules

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/runctx"
)

// newRunContext собирает RunContext с временной рабочей директорией.
func newRunContext(t *testing.T) *runctx.RunContext {
	t.Helper()

	b := runctx.NewBuilder(runctx.Config{BaseDir: t.TempDir()})
	rc, cleanup, err := b.Build(context.Background(), &domain.Pipeline{ID: "test"}, "run-1", nil)
	if err != nil {
		t.Fatalf("build run context: %v", err)
	}
	t.Cleanup(cleanup)
	return rc
}

func TestShellModule_Success(t *testing.T) {
	rc := newRunContext(t)
	m := NewShellModule()

	result, err := m.Run(context.Background(), rc, map[string]any{
		"command": "echo hello",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := result.(map[string]any)
	if got := out["output"].(string); strings.TrimSpace(got) != "hello" {
		t.Errorf("output = %q, want hello", got)
	}
	if out["exit_code"] != 0 {
		t.Errorf("exit_code = %v, want 0", out["exit_code"])
	}
}

func TestShellModule_RunsInWorkDir(t *testing.T) {
	rc := newRunContext(t)
	m := NewShellModule()

	result, err := m.Run(context.Background(), rc, map[string]any{
		"command": "pwd",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := result.(map[string]any)
	if got := strings.TrimSpace(out["output"].(string)); !strings.HasSuffix(got, "test-run-1") {
		t.Errorf("pwd = %q, want suffix test-run-1", got)
	}
}

func TestShellModule_EnvVisible(t *testing.T) {
	rc := newRunContext(t)
	rc.Env["GREETING"] = "privet"
	m := NewShellModule()

	result, err := m.Run(context.Background(), rc, map[string]any{
		"command": "echo $GREETING-$EXTRA",
		"env":     map[string]any{"EXTRA": "step"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := result.(map[string]any)
	if got := strings.TrimSpace(out["output"].(string)); got != "privet-step" {
		t.Errorf("output = %q, want privet-step", got)
	}
}

func TestShellModule_NonZeroExit(t *testing.T) {
	rc := newRunContext(t)
	m := NewShellModule()

	_, err := m.Run(context.Background(), rc, map[string]any{
		"command": "echo boom >&2; exit 3",
	})
	if err == nil {
		t.Fatal("expected error for exit 3")
	}
	if !strings.Contains(err.Error(), "code 3") {
		t.Errorf("error = %v, want exit code 3 mentioned", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error = %v, want stderr output included", err)
	}
}

func TestShellModule_MissingCommand(t *testing.T) {
	rc := newRunContext(t)
	m := NewShellModule()

	_, err := m.Run(context.Background(), rc, map[string]any{})
	if !errors.Is(err, module.ErrInvalidParams) {
		t.Errorf("error = %v, want ErrInvalidParams", err)
	}
}

func TestShellModule_Cancelled(t *testing.T) {
	rc := newRunContext(t)
	m := NewShellModule()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Run(ctx, rc, map[string]any{
		"command": "sleep 10",
	})
	if !errors.Is(err, module.ErrCancelled) {
		t.Errorf("error = %v, want ErrCancelled", err)
	}
}

func TestJSONModule_Lookup(t *testing.T) {
	rc := newRunContext(t)
	if err := rc.SetResult("fetch", map[string]any{
		"body": map[string]any{
			"items": []any{
				map[string]any{"id": "a-1"},
				map[string]any{"id": "b-2"},
			},
		},
	}); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	m := NewJSONModule()
	result, err := m.Run(context.Background(), rc, map[string]any{
		"from": "fetch",
		"path": "body.items.1.id",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != "b-2" {
		t.Errorf("result = %v, want b-2", result)
	}
}

func TestJSONModule_EmptyPathReturnsWhole(t *testing.T) {
	rc := newRunContext(t)
	rc.SetResult("fetch", map[string]any{"x": 1})

	m := NewJSONModule()
	result, err := m.Run(context.Background(), rc, map[string]any{"from": "fetch"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.(map[string]any)["x"] != 1 {
		t.Errorf("result = %v", result)
	}
}

func TestJSONModule_Errors(t *testing.T) {
	rc := newRunContext(t)
	rc.SetResult("fetch", map[string]any{"items": []any{"a"}})
	m := NewJSONModule()

	cases := []struct {
		name   string
		params map[string]any
	}{
		{"missing from", map[string]any{"path": "x"}},
		{"unknown step", map[string]any{"from": "nope"}},
		{"missing key", map[string]any{"from": "fetch", "path": "other"}},
		{"index out of range", map[string]any{"from": "fetch", "path": "items.5"}},
		{"non-numeric index", map[string]any{"from": "fetch", "path": "items.first"}},
		{"descend into scalar", map[string]any{"from": "fetch", "path": "items.0.deep"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Run(context.Background(), rc, tc.params); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFSModule_WriteReadCopy(t *testing.T) {
	rc := newRunContext(t)
	m := NewFSModule()
	ctx := context.Background()

	if _, err := m.Run(ctx, rc, map[string]any{
		"op": "write", "path": "out/a.txt", "content": "data",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := m.Run(ctx, rc, map[string]any{
		"op": "copy", "path": "out/a.txt", "dest": "out/b.txt",
	}); err != nil {
		t.Fatalf("copy: %v", err)
	}

	result, err := m.Run(ctx, rc, map[string]any{
		"op": "read", "path": "out/b.txt",
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := result.(map[string]any)["content"]; got != "data" {
		t.Errorf("content = %q, want data", got)
	}
}

func TestFSModule_RejectsEscape(t *testing.T) {
	rc := newRunContext(t)
	m := NewFSModule()

	for _, path := range []string{"../outside.txt", "/etc/passwd", "a/../../x"} {
		_, err := m.Run(context.Background(), rc, map[string]any{
			"op": "read", "path": path,
		})
		if !errors.Is(err, module.ErrInvalidParams) {
			t.Errorf("path %q: error = %v, want ErrInvalidParams", path, err)
		}
	}
}

func TestFSModule_UnknownOp(t *testing.T) {
	rc := newRunContext(t)
	m := NewFSModule()

	_, err := m.Run(context.Background(), rc, map[string]any{"op": "move", "path": "a"})
	if !errors.Is(err, module.ErrInvalidParams) {
		t.Errorf("error = %v, want ErrInvalidParams", err)
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := module.NewRegistry()
	RegisterBuiltins(r)

	for _, name := range []string{"shell", "http", "json", "fs", "s3", "queue"} {
		if !r.Has(name) {
			t.Errorf("module %q not registered", name)
		}
	}
}

func TestParamHelpers(t *testing.T) {
	params := map[string]any{
		"s":  "str",
		"i":  42,
		"f":  float64(7),
		"b":  true,
		"m":  map[string]any{"k": "v", "n": 1},
		"ms": map[string]string{"a": "b"},
	}

	if got := ParamString(params, "s"); got != "str" {
		t.Errorf("ParamString = %q", got)
	}
	if got := ParamString(params, "i"); got != "" {
		t.Errorf("ParamString on int = %q, want empty", got)
	}
	if got := ParamInt(params, "i"); got != 42 {
		t.Errorf("ParamInt = %d", got)
	}
	if got := ParamInt(params, "f"); got != 7 {
		t.Errorf("ParamInt on float64 = %d", got)
	}
	if got := ParamBool(params, "b", false); !got {
		t.Error("ParamBool = false, want true")
	}
	if got := ParamBool(params, "missing", true); !got {
		t.Error("ParamBool default not applied")
	}
	if got := ParamMap(params, "m"); got["k"] != "v" {
		t.Errorf("ParamMap = %v", got)
	}
	if got := ParamStringMap(params, "m"); got["k"] != "v" || len(got) != 1 {
		t.Errorf("ParamStringMap filters non-strings: %v", got)
	}
	if got := ParamStringMap(params, "ms"); got["a"] != "b" {
		t.Errorf("ParamStringMap passthrough = %v", got)
	}
}
