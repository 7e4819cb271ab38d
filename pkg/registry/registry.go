// Package registry is where the primitive generators announce
// themselves. Generator packages call Register from init functions;
// the driver looks functions up by qualified name and iterates the
// sorted listing for --list.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

// GenerateFunc builds the function's code from scratch.
type GenerateFunc func() (*codegen.Code, error)

// TestFunc checks previously generated code against one test vector.
type TestFunc func(c *codegen.Code, vec *testvec.Vector) error

// Entry describes one registered function generator.
type Entry struct {
	// Name is the function symbol, e.g. "keccakp_200_permute".
	Name string
	// Variant distinguishes registrations sharing a name, e.g. a
	// share count. May be empty.
	Variant string
	// Platform is the target tag, e.g. "avr5".
	Platform string

	Generate GenerateFunc
	Test     TestFunc
}

// QualifiedName combines name, variant and platform with colons,
// omitting empty parts.
func (e Entry) QualifiedName() string {
	qual := e.Name
	if e.Variant != "" {
		qual += ":" + e.Variant
	}
	if e.Platform != "" {
		qual += ":" + e.Platform
	}
	return qual
}

var (
	mu      sync.Mutex
	entries []Entry

	once   sync.Once
	byName map[string]Entry
	names  []string
)

// Register adds an entry to the registry. It is intended for init
// functions in the generator packages; registering after the first
// lookup, without a name, or without a generator is a programming
// error and panics.
func Register(e Entry) {
	if e.Name == "" || e.Generate == nil {
		panic(fmt.Sprintf("registry: incomplete entry %q", e.QualifiedName()))
	}
	mu.Lock()
	defer mu.Unlock()
	if byName != nil {
		panic(fmt.Sprintf("registry: %q registered after first lookup", e.QualifiedName()))
	}
	entries = append(entries, e)
}

// freeze snapshots the registrations into a sorted, read-only view.
func freeze() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		byName = make(map[string]Entry, len(entries))
		for _, e := range entries {
			byName[e.QualifiedName()] = e
		}
		names = make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
	})
}

// Find returns the entry with the given qualified name.
func Find(qualified string) (Entry, bool) {
	freeze()
	e, ok := byName[qualified]
	return e, ok
}

// Names returns every qualified name in sorted order.
func Names() []string {
	freeze()
	out := make([]string, len(names))
	copy(out, names)
	return out
}
