package shutdown

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestWriteDiagnostics(t *testing.T) {
	root := t.TempDir()
	dump, req, err := WriteDiagnostics(root, "store_open_failed", errors.New("disk full"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(dump)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "reason: store_open_failed") || !strings.Contains(s, "goroutine stacks") {
		t.Fatalf("dump missing sections:\n%s", s)
	}

	rb, err := os.ReadFile(req)
	if err != nil {
		t.Fatalf("read req: %v", err)
	}
	var parsed exitRequest
	if err := json.Unmarshal(rb, &parsed); err != nil {
		t.Fatalf("req not json: %v", err)
	}
	if parsed.Cmd != "crash" || parsed.CrashPath != dump {
		t.Fatalf("unexpected req: %+v", parsed)
	}
}
