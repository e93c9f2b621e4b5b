package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	old := Version
	Version = "1.2.3"
	t.Cleanup(func() { Version = old })
	if got := String(); !strings.Contains(got, "gridbridge 1.2.3") {
		t.Fatalf("unexpected version string %q", got)
	}
	if Get().Version != "1.2.3" || Get().GoVersion == "" {
		t.Fatalf("unexpected info %+v", Get())
	}
}
