package registry

import "strings"

const (
	maxNameLength = 50
	maxSlugLength = 30
)

// SanitizeName strips a display name down to ASCII letters, digits, spaces
// and hyphens, trims surrounding whitespace and caps the length. An empty
// result means the input was not a usable name.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-':
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	if len(s) > maxNameLength {
		s = strings.TrimSpace(s[:maxNameLength])
	}
	return s
}

// Slugify derives a URL-safe slug from a tenant name: lowercase, hyphens for
// whitespace, only [a-z0-9-], no leading or trailing hyphen, at most 30
// characters. Applying it twice yields the same result.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = strings.Join(strings.Fields(s), "-")

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	s = b.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLength {
		s = strings.Trim(s[:maxSlugLength], "-")
	}
	return s
}
