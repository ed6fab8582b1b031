package backfill

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MikeSquared-Agency/glossa/internal/extractor"
)

// Line is one sentence to import.
type Line struct {
	Number  int
	Request extractor.Request
}

// ParseFile reads sentences from path. See ParseLines.
func ParseFile(path, defaultUser string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	return ParseLines(f, defaultUser)
}

// ParseLines reads one sentence per line. A line starting with '{' is
// decoded as a JSON request ({"text": ..., "user": ...}). Blank lines and
// lines starting with '#' are skipped.
func ParseLines(r io.Reader, defaultUser string) ([]Line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []Line
	n := 0
	for scanner.Scan() {
		n++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		req := extractor.Request{Text: raw, User: defaultUser}
		if strings.HasPrefix(raw, "{") {
			var decoded extractor.Request
			if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			if strings.TrimSpace(decoded.Text) == "" {
				continue
			}
			if decoded.User == "" {
				decoded.User = defaultUser
			}
			req = decoded
		}
		lines = append(lines, Line{Number: n, Request: req})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return lines, nil
}
