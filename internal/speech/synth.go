package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// DefaultTTSURL is the public translate TTS endpoint.
const DefaultTTSURL = "https://translate.google.com/translate_tts"

// maxChunkRunes is the longest text the endpoint accepts per request.
const maxChunkRunes = 200

// Synthesizer produces MP3 audio for text in the language with the given code.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

// HTTPSynth calls the translate TTS endpoint once per chunk and joins the MP3 frames.
type HTTPSynth struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSynth(baseURL string) *HTTPSynth {
	if baseURL == "" {
		baseURL = DefaultTTSURL
	}
	return &HTTPSynth{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPSynth) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	chunks := chunk(text, maxChunkRunes)
	var audio bytes.Buffer
	for i, c := range chunks {
		b, err := h.fetch(ctx, c, lang, i, len(chunks))
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		audio.Write(b)
	}
	return audio.Bytes(), nil
}

func (h *HTTPSynth) fetch(ctx context.Context, text, lang string, idx, total int) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", text)
	q.Set("idx", fmt.Sprint(idx))
	q.Set("total", fmt.Sprint(total))
	q.Set("textlen", fmt.Sprint(len([]rune(text))))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts returned status %d", resp.StatusCode)
	}
	return body, nil
}

// chunk splits text into pieces of at most max runes, preferring to break
// after punctuation or whitespace.
func chunk(text string, max int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > max {
		cut := max
		for i := max; i > max/2; i-- {
			if isBreak(runes[i-1]) {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = runes[cut:]
	}
	if piece := strings.TrimSpace(string(runes)); piece != "" {
		out = append(out, piece)
	}
	return out
}

func isBreak(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}
