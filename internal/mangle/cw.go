package mangle

import (
	"strconv"
	"strings"
)

// demangleCW handles the CodeWarrior/Metrowerks flavor of C++ mangling
// seen in GameCube-era binaries: name__7MyClassFv, __ct__9SomeClassFv,
// init__Q24Game6PlayerFv and the like. Anything it cannot parse comes
// back unchanged.
func demangleCW(name string) string {
	sep := strings.LastIndex(name, "__")
	if sep <= 0 {
		return name
	}
	base := name[:sep]
	rest := name[sep+2:]
	if rest == "" {
		return name
	}

	var scopes []string
	ok := true
	switch {
	case rest[0] == 'Q':
		scopes, rest, ok = parseCWNested(rest)
	case rest[0] >= '1' && rest[0] <= '9':
		var scope string
		scope, rest, ok = parseCWClass(rest)
		scopes = []string{scope}
	}
	if !ok {
		return name
	}

	// What remains must be a function type, const-qualified or not, or
	// nothing at all (plain scoped data symbol).
	switch {
	case rest == "":
	case rest[0] == 'F', strings.HasPrefix(rest, "CF"):
	default:
		return name
	}

	switch base {
	case "__ct":
		if len(scopes) == 0 {
			return name
		}
		base = scopes[len(scopes)-1]
	case "__dt":
		if len(scopes) == 0 {
			return name
		}
		base = "~" + scopes[len(scopes)-1]
	}

	qualified := strings.Join(append(scopes, base), "::")
	if rest != "" {
		qualified += "()"
	}
	return qualified
}

// parseCWClass reads one length-prefixed class name.
func parseCWClass(s string) (string, string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return "", s, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n == 0 || i+n > len(s) {
		return "", s, false
	}
	return s[i : i+n], s[i+n:], true
}

// parseCWNested reads Q<count> followed by count length-prefixed names.
func parseCWNested(s string) ([]string, string, bool) {
	if len(s) < 2 || s[0] != 'Q' || s[1] < '1' || s[1] > '9' {
		return nil, s, false
	}
	count := int(s[1] - '0')
	rest := s[2:]
	scopes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var scope string
		var ok bool
		scope, rest, ok = parseCWClass(rest)
		if !ok {
			return nil, s, false
		}
		scopes = append(scopes, scope)
	}
	return scopes, rest, true
}
