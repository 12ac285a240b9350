package hierarchy

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxNameLength = 100
	placeholderName      = "untitled"
	reservedPrefix       = "_"
)

// names Windows refuses regardless of extension
var reservedNames = func() map[string]struct{} {
	m := map[string]struct{}{"con": {}, "prn": {}, "aux": {}, "nul": {}}
	for i := '1'; i <= '9'; i++ {
		m["com"+string(i)] = struct{}{}
		m["lpt"+string(i)] = struct{}{}
	}
	return m
}()

// SanitizeTitle turns a remote title into a file name stem using the default length bound.
func SanitizeTitle(title string) string {
	return sanitize(title, DefaultMaxNameLength)
}

func sanitize(title string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(title))

	pendingSep := false
	for _, r := range title {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), r == utf8.RuneError:
			continue
		case unicode.IsSpace(r), r == '-':
			pendingSep = b.Len() > 0
			continue
		case unicode.IsControl(r):
			continue
		}
		if pendingSep {
			b.WriteByte('-')
			pendingSep = false
		}
		b.WriteRune(unicode.ToLower(r))
	}

	name := strings.Trim(b.String(), "-.")
	if maxLen > 0 && utf8.RuneCountInString(name) > maxLen {
		name = strings.TrimRight(string([]rune(name)[:maxLen]), "-.")
	}

	if name == "" {
		return placeholderName
	}

	stem, _, _ := strings.Cut(name, ".")
	if _, ok := reservedNames[stem]; ok {
		name = reservedPrefix + name
	}
	return name
}
