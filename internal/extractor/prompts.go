package extractor

import (
	"fmt"
	"strings"
)

// DefaultTargetLanguage is the language translations and notes are written in.
const DefaultTargetLanguage = "简体中文"

const analysisPrompt = `You are a professional language teacher. Analyze the sentence below for a learner.

Sentence:
---
%s
---

Tasks:
1. Detect the language of the sentence. Name it in %[2]s (for example "日语", "英语").
2. If the sentence contains mistakes or unnatural phrasing, give a corrected, idiomatic version. If it is already correct, repeat it unchanged.
3. Translate the sentence into %[2]s.
4. Explain grammar points, idioms and nuances in %[2]s.
5. Split the sentence into words or meaningful chunks and gloss each one.

Respond with a single valid JSON object matching this schema:
{
  "language": "string",
  "correction": "string",
  "translation": "string",
  "nuances": "string",
  "structure": [
    {
      "word": "the chunk exactly as written",
      "reading": "phonetic reading (romaji for Japanese)",
      "pos_meaning": "part of speech / meaning, e.g. 动词 / 决定",
      "grammar": "grammar explanation",
      "standard": "dictionary or standard written form"
    }
  ]
}

Every item in "structure" must have exactly these keys: word, reading, pos_meaning, grammar, standard.
Return ONLY the JSON object, no markdown fences or other text.`

// PromptBuilder renders the analysis instruction for a sentence.
type PromptBuilder struct {
	TargetLanguage string
}

// Build returns the prompt for text. Empty text is rejected with KindInvalidInput.
func (b PromptBuilder) Build(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", NewIngestError(KindInvalidInput, "text is empty", nil)
	}
	target := b.TargetLanguage
	if target == "" {
		target = DefaultTargetLanguage
	}
	return fmt.Sprintf(analysisPrompt, text, target), nil
}

// BuildPrompt builds the prompt with the default target language.
func BuildPrompt(text string) (string, error) {
	return PromptBuilder{}.Build(text)
}
