// Package snapshot scans component source for local state declarations and
// produces a serializable name -> initial-value mapping used to hydrate the
// preview document. This is a best-effort text scan, not a parser: non-literal
// initializers may be missed and consumers must tolerate a partial or empty
// mapping.
package snapshot

import (
	"regexp"
	"strings"
)

// useStateRe matches destructured state declarations of the form
//
//	const [count, setCount] = useState(0)
//
// capturing the bound variable name and the literal initializer expression.
var useStateRe = regexp.MustCompile(`(?:const|let|var)\s*\[\s*(\w+)\s*,\s*\w+\s*\]\s*=\s*useState\s*\(([^)]*)\)`)

// Scan returns a mapping from state variable name to its trimmed initializer
// text. A single layer of surrounding quotes is stripped. The last occurrence
// wins when a name is declared more than once.
func Scan(source string) map[string]string {
	out := make(map[string]string)
	for _, m := range useStateRe.FindAllStringSubmatch(source, -1) {
		name := m[1]
		init := strings.TrimSpace(m[2])
		init = trimQuote(init)
		out[name] = init
	}
	return out
}

// trimQuote strips one matching pair of surrounding quote characters.
func trimQuote(s string) string {
	if len(s) < 2 {
		return s
	}
	first := s[0]
	last := s[len(s)-1]
	if first != last {
		return s
	}
	switch first {
	case '\'', '"', '`':
		return s[1 : len(s)-1]
	}
	return s
}
