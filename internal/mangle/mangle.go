// Package mangle turns compiler-mangled symbol names back into readable
// signatures. It is purely cosmetic: the diff algorithm never depends on
// it, so demangling never fails. Input that does not match the selected
// scheme's grammar comes back unchanged.
package mangle

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// Scheme selects a mangling grammar. The caller picks it from the
// toolchain being diffed; nothing here sniffs it from the object file.
type Scheme int

const (
	None Scheme = iota
	Itanium
	MSVC
	CodeWarrior
)

func (s Scheme) String() string {
	switch s {
	case Itanium:
		return "itanium"
	case MSVC:
		return "msvc"
	case CodeWarrior:
		return "cw"
	}
	return "none"
}

// ParseScheme maps a CLI name to a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "itanium", "gcc":
		return Itanium, nil
	case "msvc":
		return MSVC, nil
	case "cw", "codewarrior", "mw", "metrowerks":
		return CodeWarrior, nil
	}
	return None, fmt.Errorf("unknown mangling scheme %q", s)
}

type cacheKey struct {
	scheme Scheme
	name   string
}

// Demangled names are pure functions of their input, so a process-wide
// cache with no eviction is safe; concurrent recomputation just
// overwrites an entry with an identical value.
var cache sync.Map

// Demangle returns the readable form of name under the given scheme, or
// name itself when it does not parse.
func Demangle(name string, scheme Scheme) string {
	if scheme == None || name == "" {
		return name
	}
	key := cacheKey{scheme: scheme, name: name}
	if v, ok := cache.Load(key); ok {
		return v.(string)
	}
	out := demangleSlow(name, scheme)
	cache.Store(key, out)
	return out
}

func demangleSlow(name string, scheme Scheme) string {
	switch scheme {
	case Itanium:
		out := demangle.Filter(name, demangle.NoClones)
		if out == "" {
			return name
		}
		return out
	case MSVC:
		return demangleMSVC(name)
	case CodeWarrior:
		return demangleCW(name)
	}
	return name
}
