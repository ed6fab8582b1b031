// Package morph fills gaps in Japanese glosses with a local morphological analyzer.
package morph

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/MikeSquared-Agency/glossa/internal/extractor"
)

// IPA feature positions.
const (
	featPOS      = 0
	featBaseForm = 6
	featReading  = 7
)

var japaneseLabels = map[string]bool{
	"日语": true, "日文": true, "日本語": true, "japanese": true,
}

var contentPOS = map[string]bool{
	"動詞": true, "形容詞": true, "名詞": true, "形容動詞": true,
}

// Enricher fills empty reading and standard fields of Japanese records.
// Model-supplied values are never overwritten.
type Enricher struct {
	t      *tokenizer.Tokenizer
	logger *slog.Logger
}

func New(logger *slog.Logger) (*Enricher, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("create tokenizer: %w", err)
	}
	return &Enricher{t: t, logger: logger}, nil
}

func (e *Enricher) Enrich(rec *extractor.Record) {
	if rec == nil || !japaneseLabels[strings.ToLower(strings.TrimSpace(rec.Language))] {
		return
	}
	filled := 0
	for i := range rec.Structure {
		g := &rec.Structure[i]
		if strings.TrimSpace(g.Word) == "" || (g.Reading != "" && g.Standard != "") {
			continue
		}
		reading, standard := e.analyze(g.Word)
		if g.Reading == "" && reading != "" {
			g.Reading = reading
			filled++
		}
		if g.Standard == "" && standard != "" {
			g.Standard = standard
			filled++
		}
	}
	if filled > 0 {
		e.logger.Debug("filled gloss fields", "count", filled)
	}
}

// analyze returns the katakana reading of word and the dictionary form of
// its first content token.
func (e *Enricher) analyze(word string) (reading, standard string) {
	var sb strings.Builder
	for _, tok := range e.t.Tokenize(word) {
		if tok.Class == tokenizer.DUMMY || strings.TrimSpace(tok.Surface) == "" {
			continue
		}
		features := tok.Features()

		if len(features) > featReading && features[featReading] != "*" {
			sb.WriteString(features[featReading])
		} else {
			sb.WriteString(tok.Surface)
		}

		if standard == "" && len(features) > featBaseForm && contentPOS[features[featPOS]] && features[featBaseForm] != "*" {
			standard = features[featBaseForm]
		}
	}
	if standard == "" {
		standard = word
	}
	return sb.String(), standard
}
