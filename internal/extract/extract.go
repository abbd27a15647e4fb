// Package extract recovers structured content from noisy model output.
// Both entry points are total: they return a best-effort string for any
// input and never fail.
package extract

import (
	"regexp"
	"strings"
)

// JSONObject returns the first syntactically balanced {...} object in raw,
// ignoring braces inside quoted strings and honoring backslash-escaped
// quotes. If no balanced close is found it falls back to the span between
// the first '{' and the last '}'. Input without braces is returned unchanged.
func JSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return raw
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1]
				}
			}
		}
	}

	// No balanced close: take everything between the outermost braces.
	end := strings.LastIndexByte(raw, '}')
	if end > start {
		return raw[start : end+1]
	}
	return raw[start:]
}

var (
	returnParenRe    = regexp.MustCompile(`return\s*\(`)
	returnFragmentRe = regexp.MustCompile(`(?s)return\s*(<>.*</>)`)
	classNameRe      = regexp.MustCompile(`\bclassName=`)
)

// Markup pulls renderable markup out of component source. It tries, in
// order: a parenthesized return block, a returned fragment shorthand, and
// the widest slice between the first '<' and the last '>'. The JSX
// className attribute is renamed to class. When nothing matches, the raw
// source is returned as an HTML-escaped <pre> dump so the preview always
// has something to show.
func Markup(source string) string {
	if body, ok := returnedParenBlock(source); ok {
		return classNameRe.ReplaceAllString(body, "class=")
	}
	if m := returnFragmentRe.FindStringSubmatch(source); m != nil {
		return classNameRe.ReplaceAllString(m[1], "class=")
	}

	first := strings.IndexByte(source, '<')
	last := strings.LastIndexByte(source, '>')
	if first >= 0 && last > first {
		return classNameRe.ReplaceAllString(source[first:last+1], "class=")
	}

	return "<pre>" + EscapeHTML(source) + "</pre>"
}

// returnedParenBlock finds the first "return (" and scans forward to the
// matching close paren, returning the trimmed body.
func returnedParenBlock(source string) (string, bool) {
	loc := returnParenRe.FindStringIndex(source)
	if loc == nil {
		return "", false
	}

	depth := 1
	for i := loc[1]; i < len(source); i++ {
		switch source[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(source[loc[1]:i]), true
			}
		}
	}
	return "", false
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes the five HTML-special characters.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
