package mangle

import "strings"

// demangleMSVC is a best-effort reading of Visual C++ decorated names.
// It recovers the qualified name, which is what symbol listings and diff
// headers need; full signature reconstruction is out of scope and
// unparseable input is returned verbatim.
func demangleMSVC(name string) string {
	if !strings.HasPrefix(name, "?") {
		return name
	}
	rest := name[1:]

	// Special member names use a two-character '?'-prefixed code glued
	// directly onto the enclosing class: ??0Widget@@ is Widget's ctor.
	special := ""
	if strings.HasPrefix(rest, "?") {
		if len(rest) < 2 {
			return name
		}
		special = rest[:2]
		rest = rest[2:]
	}

	end := strings.Index(rest, "@@")
	if end < 0 {
		return name
	}
	parts := strings.Split(rest[:end], "@")
	if len(parts) == 0 || parts[0] == "" {
		return name
	}

	if special != "" {
		class := parts[0]
		switch special {
		case "?0":
			parts = append([]string{class}, parts...)
		case "?1":
			parts = append([]string{"~" + class}, parts...)
		default:
			op, ok := msvcOperators[special]
			if !ok {
				return name
			}
			parts = append([]string{op}, parts...)
		}
	}

	// Components are stored innermost-first.
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" {
			return name
		}
		b.WriteString(parts[i])
		if i > 0 {
			b.WriteString("::")
		}
	}
	return b.String()
}

var msvcOperators = map[string]string{
	"?2": "operator new",
	"?3": "operator delete",
	"?4": "operator=",
	"?8": "operator==",
	"?9": "operator!=",
	"?A": "operator[]",
	"?B": "operator cast",
	"?C": "operator->",
	"?D": "operator*",
	"?E": "operator++",
	"?F": "operator--",
	"?G": "operator-",
	"?H": "operator+",
	"?R": "operator()",
}
