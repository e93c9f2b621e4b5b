package policy

import "strings"

// Policy decides which execution engines a request may select.
// Block wins over Allow; an empty Allow list allows everything not blocked.
type Policy struct {
	Allow []string
	Block []string
}

// Default allows only the hermetic script engine.
func Default() *Policy {
	return &Policy{Allow: []string{"starlark"}}
}

func (p *Policy) IsAllowed(engine string) bool {
	if p == nil {
		return true
	}
	for _, name := range p.Block {
		if strings.EqualFold(name, engine) {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, name := range p.Allow {
		if strings.EqualFold(name, engine) {
			return true
		}
	}
	return false
}
