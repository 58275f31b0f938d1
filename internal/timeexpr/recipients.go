package timeexpr

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const markup = "@*_`~<>"

// ParseRecipients extracts addressees from a mention list such as
// "@**Alice** @**Bob Smith**, carol". Mention markup is stripped, a
// "@**...**" mention may contain spaces, duplicates are dropped and
// order is kept.
func ParseRecipients(text string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(raw string) {
		name := strings.Trim(strings.TrimSpace(raw), markup)
		if i := strings.IndexByte(name, '|'); i >= 0 {
			name = name[:i]
		}
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) || r == ',' {
			i += size
			continue
		}
		if strings.HasPrefix(text[i:], "@**") {
			if end := strings.Index(text[i+3:], "**"); end >= 0 {
				add(text[i+3 : i+3+end])
				i += 3 + end + 2
				continue
			}
		}
		j := i
		for j < len(text) {
			r, size := utf8.DecodeRuneInString(text[j:])
			if unicode.IsSpace(r) || r == ',' {
				break
			}
			j += size
		}
		add(text[i:j])
		i = j
	}
	return out
}
