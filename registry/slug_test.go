package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		expected string
	}{
		{"plain", "Acme Corp", "Acme Corp"},
		{"strips punctuation", "Acme, Corp!", "Acme Corp"},
		{"keeps hyphens", "acme-corp", "acme-corp"},
		{"trims whitespace", "  acme  ", "acme"},
		{"only punctuation", "!!!???", ""},
		{"caps at 50", strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeName(tc.in))
		})
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"Acme Corp", "acme-corp"},
		{"  Acme   Corp  ", "acme-corp"},
		{"Acme--Corp", "acme-corp"},
		{"-acme-", "acme"},
		{"Ümlaut Client", "mlaut-client"},
		{strings.Repeat("long-name-", 10), "long-name-long-name-long-name"},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.expected, Slugify(tc.in))
		})
	}
}

func TestSlugifyProperties(t *testing.T) {
	inputs := []string{
		"Acme Corp", "a b c d e f g", "UPPER", "trailing hyphen -",
		strings.Repeat("x", 100), "mixed 123 Digits",
	}
	for _, in := range inputs {
		slug := Slugify(in)

		assert.LessOrEqual(t, len(slug), maxSlugLength)
		assert.False(t, strings.HasPrefix(slug, "-"), "slug %q has leading hyphen", slug)
		assert.False(t, strings.HasSuffix(slug, "-"), "slug %q has trailing hyphen", slug)
		for _, r := range slug {
			valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
			assert.True(t, valid, "slug %q contains %q", slug, r)
		}

		// Idempotent: slugifying a slug is a no-op.
		assert.Equal(t, slug, Slugify(slug))
	}
}
