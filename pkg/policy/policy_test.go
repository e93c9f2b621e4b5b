package policy

import "testing"

func TestDefaultPolicy(t *testing.T) {
	p := Default()
	if !p.IsAllowed("starlark") {
		t.Fatalf("expected starlark allowed")
	}
	if p.IsAllowed("python") {
		t.Fatalf("expected python to be blocked by default")
	}
}

func TestBlockWinsOverAllow(t *testing.T) {
	p := &Policy{Allow: []string{"starlark", "python"}, Block: []string{"Python"}}
	if p.IsAllowed("python") {
		t.Fatalf("expected block list to win")
	}
	if !p.IsAllowed("STARLARK") {
		t.Fatalf("expected case-insensitive match")
	}
}

func TestEmptyAllowListAllowsAll(t *testing.T) {
	p := &Policy{}
	if !p.IsAllowed("anything") {
		t.Fatalf("expected empty allow list to allow")
	}
	var nilPolicy *Policy
	if !nilPolicy.IsAllowed("starlark") {
		t.Fatalf("expected nil policy to allow")
	}
}
