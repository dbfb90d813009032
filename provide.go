package ombra

// pushProvide adds a provided value. An inner entry with the same name
// shadows the outer one until the matching popProvide.
func (p *Pass) pushProvide(name string, value map[string]any) {
	if value == nil {
		value = map[string]any{}
	}
	p.provide = append(p.provide, provideEntry{name: name, value: value})
}

// popProvide removes the most recent entry. It pairs with pushProvide via
// defer so a failing subtree still unwinds the stack completely.
func (p *Pass) popProvide() {
	p.provide = p.provide[:len(p.provide)-1]
}

// lookupProvide finds the innermost provided value under name.
func (p *Pass) lookupProvide(name string) (map[string]any, bool) {
	for i := len(p.provide) - 1; i >= 0; i-- {
		if p.provide[i].name == name {
			return p.provide[i].value, true
		}
	}
	return nil, false
}

// provideDepth reports the number of live provide entries. Zero between
// passes; a nonzero value after a root render is a leak.
func (p *Pass) provideDepth() int {
	return len(p.provide)
}
