// Package query filters and searches an in-memory history snapshot.
package query

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/MikeSquared-Agency/glossa/internal/extractor"
	"github.com/MikeSquared-Agency/glossa/internal/store"
)

// FilterByLanguage keeps entries whose derived language equals *lang.
// A nil lang keeps everything.
func FilterByLanguage(entries []store.Entry, lang *string) []store.Entry {
	if lang == nil {
		return entries
	}
	out := make([]store.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Language == *lang {
			out = append(out, e)
		}
	}
	return out
}

// Search keeps entries whose sentence or serialized record contains q,
// ignoring case and character width. Only the empty q keeps everything;
// whitespace is matched literally.
func Search(entries []store.Entry, q string) []store.Entry {
	if q == "" {
		return entries
	}
	fold := cases.Fold()
	needle := normalize(fold, q)

	out := make([]store.Entry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(normalize(fold, e.Sentence), needle) ||
			strings.Contains(normalize(fold, recordText(e)), needle) {
			out = append(out, e)
		}
	}
	return out
}

// Languages lists the distinct derived languages in first-seen order.
func Languages(entries []store.Entry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if !seen[e.Language] {
			seen[e.Language] = true
			out = append(out, e.Language)
		}
	}
	return out
}

func normalize(fold cases.Caser, s string) string {
	return fold.String(norm.NFKC.String(s))
}

func recordText(e store.Entry) string {
	if e.Record != nil {
		if s, err := extractor.Encode(e.Record); err == nil {
			return s
		}
	}
	if e.Err != nil {
		return e.Err.RawExcerpt
	}
	return ""
}
