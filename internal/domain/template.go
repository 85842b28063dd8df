package domain

import (
	"fmt"
	"strings"
)

// FormatTemplate substitutes {key} placeholders, as used by path and date
// templates such as "{year}-{month2d}-{day2d}T{hour2d}". Doubled braces are
// literal braces.
func FormatTemplate(tmpl string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl) + 16)

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", &ConfigurationError{Field: "template", Reason: fmt.Sprintf("unclosed placeholder in %q", tmpl)}
			}
			key := tmpl[i+1 : i+1+end]
			v, ok := values[key]
			if !ok {
				return "", &ConfigurationError{Field: "template", Reason: fmt.Sprintf("unknown placeholder {%s} in %q", key, tmpl)}
			}
			b.WriteString(v)
			i += end + 1
		case c == '}':
			return "", &ConfigurationError{Field: "template", Reason: fmt.Sprintf("unmatched '}' in %q", tmpl)}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
