package store

import (
	"context"
	"errors"
)

// ErrRowNotFound is returned by DeleteRowAt when index is past the last row.
var ErrRowNotFound = errors.New("row not found")

// TabularLog is an append-only sheet of string rows. Row indices are
// 1-based physical positions; a header, when present, is row 1.
type TabularLog interface {
	AppendRow(ctx context.Context, cells []string) error
	ReadAllRows(ctx context.Context) ([][]string, error)
	DeleteRowAt(ctx context.Context, index int) error
}
