package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sameehj/gridbridge/pkg/grid"
	"github.com/sameehj/gridbridge/pkg/library"
	"github.com/sameehj/gridbridge/pkg/policy"
	"github.com/sameehj/gridbridge/pkg/runtime"
	"github.com/sameehj/gridbridge/pkg/transform"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	script := "# Mark the first cell\ndfs['Sheet1'].iloc[0, 0] = 'from-library'\n"
	if err := os.WriteFile(filepath.Join(dir, "mark.star"), []byte(script), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	registry := library.NewRegistry([]string{dir})
	if err := registry.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	executor, err := runtime.NewExecutor(runtime.Config{
		Engines:        []runtime.Engine{runtime.NewStarlarkEngine(registry)},
		DefaultTimeout: 5 * time.Second,
		Policy:         policy.Default(),
	})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return NewServer(transform.NewService(executor, nil), registry)
}

func testSheets(t *testing.T) []grid.Sheet {
	t.Helper()
	var sheets []grid.Sheet
	data := `[{"name":"Sheet1","cells":[["a","b"]],"columnWidths":[50,50],"rowHeights":[20],"formats":[[{},{}]]}]`
	if err := json.Unmarshal([]byte(data), &sheets); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return sheets
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatalf("expected content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestTransformSheetsTool(t *testing.T) {
	s := newTestServer(t)
	res, err := s.handleTransform(context.Background(), mcp.CallToolRequest{}, transformArgs{
		Code:   "dfs['Sheet1'].iloc[0, 1] = 'z'",
		Sheets: testSheets(t),
	})
	if err != nil {
		t.Fatalf("handleTransform: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}
	var out transform.Result
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Sheets[0].Cells[0][1] != "z" {
		t.Fatalf("unexpected cells %v", out.Sheets[0].Cells)
	}
}

func TestTransformSheetsToolRunsLibraryScript(t *testing.T) {
	s := newTestServer(t)
	res, err := s.handleTransform(context.Background(), mcp.CallToolRequest{}, transformArgs{
		Script: "mark.star",
		Sheets: testSheets(t),
	})
	if err != nil || res.IsError {
		t.Fatalf("handleTransform: %v", err)
	}
	if !strings.Contains(resultText(t, res), "from-library") {
		t.Fatalf("expected library script output, got %s", resultText(t, res))
	}

	res, _ = s.handleTransform(context.Background(), mcp.CallToolRequest{}, transformArgs{
		Script: "nope.star",
		Sheets: testSheets(t),
	})
	if !res.IsError {
		t.Fatalf("expected error for unknown script")
	}
}

func TestTransformSheetsToolFailure(t *testing.T) {
	s := newTestServer(t)
	res, err := s.handleTransform(context.Background(), mcp.CallToolRequest{}, transformArgs{
		Code:   "fail('bad data')",
		Sheets: testSheets(t),
	})
	if err != nil {
		t.Fatalf("handleTransform: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error result")
	}
	var body transform.FailureBody
	if err := json.Unmarshal([]byte(resultText(t, res)), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != transform.KindExecution || !strings.Contains(body.Error, "bad data") {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestListScriptsTool(t *testing.T) {
	s := newTestServer(t)
	res, err := s.handleListScripts(context.Background(), mcp.CallToolRequest{}, listScriptsArgs{})
	if err != nil {
		t.Fatalf("handleListScripts: %v", err)
	}
	text := resultText(t, res)
	if !strings.Contains(text, `"name":"mark.star"`) || !strings.Contains(text, "Mark the first cell") {
		t.Fatalf("unexpected listing %s", text)
	}

	empty := NewServer(nil, nil)
	res, _ = empty.handleListScripts(context.Background(), mcp.CallToolRequest{}, listScriptsArgs{})
	if resultText(t, res) != `{"scripts":[]}` {
		t.Fatalf("unexpected empty listing %s", resultText(t, res))
	}
}

func TestToolsAreRegistered(t *testing.T) {
	s := newTestServer(t)
	reply := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, name := range []string{"transform_sheets", "list_scripts"} {
		if !strings.Contains(string(data), name) {
			t.Fatalf("expected %s in tools/list reply: %s", name, data)
		}
	}
}
