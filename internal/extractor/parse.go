package extractor

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DefaultFallbackLanguage labels records whose language is unknown.
const DefaultFallbackLanguage = "未知"

// Parser turns raw model replies (and stored data_json cells) into Records.
type Parser struct {
	FallbackLanguage string
}

// NewParser returns a Parser using fallback for records without a language.
func NewParser(fallback string) *Parser {
	if fallback == "" {
		fallback = DefaultFallbackLanguage
	}
	return &Parser{FallbackLanguage: fallback}
}

// Extract parses raw with the default fallback language.
func Extract(raw, input string) (*Record, error) {
	return NewParser(DefaultFallbackLanguage).Parse(raw, input)
}

// Parse strips formatting noise from raw and validates it into a Record.
// input is the analysed sentence; it is the correction when none is given.
// Any returned error is an *IngestError.
func (p *Parser) Parse(raw, input string) (*Record, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, &IngestError{Kind: KindMalformedOutput, Detail: "empty reply", RawExcerpt: excerpt(raw)}
	}

	// First revision of the app stored a bare token list.
	if body[0] == '[' {
		var legacy []json.RawMessage
		if err := json.Unmarshal([]byte(body), &legacy); err != nil {
			return nil, &IngestError{Kind: KindMalformedOutput, Detail: err.Error(), RawExcerpt: excerpt(raw), Err: err}
		}
		return nil, &IngestError{Kind: KindIncompleteSchema, Detail: "token list without translation", RawExcerpt: excerpt(raw)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, &IngestError{Kind: KindMalformedOutput, Detail: err.Error(), RawExcerpt: excerpt(raw), Err: err}
	}

	rec := &Record{
		Language:    strings.TrimSpace(asString(fields["language"])),
		Translation: strings.TrimSpace(asString(fields["translation"])),
		Correction:  strings.TrimSpace(asString(fields["correction"])),
		Nuances:     asString(fields["nuances"]),
	}
	if rec.Translation == "" {
		return nil, &IngestError{Kind: KindIncompleteSchema, Detail: "missing translation", RawExcerpt: excerpt(raw)}
	}

	rec.Structure, rec.Degraded = parseStructure(fields["structure"])
	if d, ok := fields["degraded"]; ok && bytes.Equal(bytes.TrimSpace(d), []byte("true")) {
		rec.Degraded = true
	}

	if rec.Language == "" {
		rec.Language = p.FallbackLanguage
	}
	if rec.Correction == "" {
		rec.Correction = input
	}
	return rec, nil
}

// Encode serializes rec into the single-cell form stored in the log.
func Encode(rec *Record) (string, error) {
	out := *rec
	if out.Structure == nil {
		out.Structure = []TokenGloss{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// parseStructure returns the glosses and whether anything had to be dropped.
func parseStructure(raw json.RawMessage) ([]TokenGloss, bool) {
	glosses := []TokenGloss{}
	if isNull(raw) {
		return glosses, false
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return glosses, true
	}

	degraded := false
	for _, item := range items {
		var f map[string]json.RawMessage
		if err := json.Unmarshal(item, &f); err != nil || f == nil {
			degraded = true
			continue
		}
		glosses = append(glosses, TokenGloss{
			Word:       asString(f["word"]),
			Reading:    asString(f["reading"]),
			POSMeaning: asString(f["pos_meaning"]),
			Grammar:    asString(f["grammar"]),
			Standard:   asString(f["standard"]),
		})
	}
	return glosses, degraded
}

// stripFences removes markdown code fences and any chatter around the object.
func stripFences(raw string) string {
	s := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
			s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "```"))

	if s == "" || s[0] == '{' || s[0] == '[' {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return s
	}
	return s[start : end+1]
}

// asString reads a JSON value as text. Non-string values keep their JSON form.
func asString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
