package httpd

import "strings"

// Param is one query parameter.  Order and duplicates are preserved.
type Param struct {
	Name  string
	Value string
}

// parseTarget splits a request target into its path and parameters.
// Both '?' and '&' separate segments; the first segment is the path.
// Each later segment is split at its first '=' and both halves are
// percent-decoded.  Empty segments are skipped.
func parseTarget(target string) (string, []Param) {
	segs := strings.FieldsFunc(target, func(r rune) bool { return r == '?' || r == '&' })
	if len(segs) == 0 {
		return "", nil
	}
	path := segs[0]
	rest := segs[1:]
	if strings.HasPrefix(target, "?") || strings.HasPrefix(target, "&") {
		path, rest = "", segs
	}

	params := make([]Param, 0, len(rest))
	for _, seg := range rest {
		name, value, _ := strings.Cut(seg, "=")
		params = append(params, Param{Name: decode(name), Value: decode(value)})
	}
	return decode(path), params
}

// decode applies form-style percent-decoding: '+' becomes a space and
// each valid "%XX" becomes the byte 0xXX.  A '%' not followed by two hex
// digits is kept as is.
func decode(s string) string {
	if strings.IndexByte(s, '%') < 0 && strings.IndexByte(s, '+') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	}
	return c - '0'
}
