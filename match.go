package deskweb

import (
	"regexp"
	"strings"

	"github.com/dormoron/deskweb/internal/errs"
)

// matchInfo holds the result of matching a request against the route table:
// the adapter serving the route and the values captured from the path.
//
// Cached matchInfo values are shared between requests, so captures must be
// treated as read-only.
type matchInfo struct {
	handler  *RequestHandler
	captures map[string]string
	route    string
}

// defaultCapture matches one path segment, like "{id}".
const defaultCapture = `[^{}/]+`

// pattern is a compiled route path. Static paths are matched by string
// equality; paths with captures such as "/item/{id}" or "/static/{file:.*}"
// are compiled to an anchored regular expression with named groups.
type pattern struct {
	raw    string
	static bool
	re     *regexp.Regexp
	names  []string
}

func compilePattern(path string) (*pattern, error) {
	if path == "" || path[0] != '/' {
		return nil, errs.ErrPatternNotRooted(path)
	}
	if !strings.ContainsAny(path, "{}") {
		return &pattern{raw: path, static: true}, nil
	}

	var (
		expr  strings.Builder
		names []string
		rest  = path
	)
	expr.WriteByte('^')
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return nil, errs.ErrPatternSyntax(path, nil)
			}
			expr.WriteString(regexp.QuoteMeta(rest))
			break
		}
		if strings.IndexByte(rest[:open], '}') >= 0 {
			return nil, errs.ErrPatternSyntax(path, nil)
		}
		expr.WriteString(regexp.QuoteMeta(rest[:open]))

		end := closingBrace(rest, open)
		if end < 0 {
			return nil, errs.ErrPatternSyntax(path, nil)
		}
		name, capture, _ := strings.Cut(rest[open+1:end], ":")
		if !isIdentifier(name) {
			return nil, errs.ErrPatternSyntax(path, nil)
		}
		if capture == "" {
			capture = defaultCapture
		}
		expr.WriteString("(?P<" + name + ">" + capture + ")")
		names = append(names, name)
		rest = rest[end+1:]
	}
	expr.WriteByte('$')

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, errs.ErrPatternSyntax(path, err)
	}
	return &pattern{raw: path, re: re, names: names}, nil
}

// closingBrace finds the brace closing the one at open, allowing nested
// braces inside a capture expression such as "{year:\d{4}}".
func closingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// match reports whether path fits the pattern and returns its captures.
func (p *pattern) match(path string) (map[string]string, bool) {
	if p.static {
		return nil, p.raw == path
	}
	groups := p.re.FindStringSubmatch(path)
	if groups == nil {
		return nil, false
	}
	captures := make(map[string]string, len(p.names))
	for i, name := range p.re.SubexpNames() {
		if name != "" && i < len(groups) {
			captures[name] = groups[i]
		}
	}
	return captures, true
}
