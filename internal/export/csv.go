// Package export writes the history snapshot as a spreadsheet-friendly CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/MikeSquared-Agency/glossa/internal/extractor"
	"github.com/MikeSquared-Agency/glossa/internal/store"
)

// bom lets spreadsheet tools detect UTF-8 for CJK text.
const bom = "\ufeff"

var columns = []string{"timestamp", "user", "language", "sentence", "translation", "correction", "nuances", "data_json"}

// Filename is the download name for an export made at now.
func Filename(now time.Time) string {
	return fmt.Sprintf("glossa_history_%s.csv", now.Format("2006-01-02"))
}

// WriteCSV writes entries in the order given. Undecodable entries keep their
// metadata and carry the error in the data_json column.
func WriteCSV(w io.Writer, entries []store.Entry) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range entries {
		rec, err := row(e)
		if err != nil {
			return fmt.Errorf("entry %s: %w", e.Timestamp, err)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write entry %s: %w", e.Timestamp, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(e store.Entry) ([]string, error) {
	out := []string{e.Timestamp, e.User, e.Language, e.Sentence, "", "", "", ""}
	if e.Record == nil {
		if e.Err != nil {
			out[7] = e.Err.Error()
		}
		return out, nil
	}
	data, err := extractor.Encode(e.Record)
	if err != nil {
		return nil, err
	}
	out[4] = e.Record.Translation
	out[5] = e.Record.Correction
	out[6] = e.Record.Nuances
	out[7] = data
	return out, nil
}
