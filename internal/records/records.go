// Package records reads and writes the tabular postings and candidate data.
package records

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
)

// ErrStore marks every failure of a record store.
var ErrStore = errors.New("record store failure")

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Error describes a failed store operation.
type Error struct {
	Op    string
	Table string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrStore for every store error.
func (e *Error) Is(target error) bool {
	return target == ErrStore
}

func newError(op, table string, err error) error {
	return &Error{Op: op, Table: table, Err: err}
}

// Row is one record keyed by column name.
type Row map[string]string

// Table is an ordered set of columns with its rows.
type Table struct {
	Columns []string
	Rows    []Row
}

// EnsureColumns appends the given columns that the table does not have yet.
func (t *Table) EnsureColumns(columns ...string) {
	for _, c := range columns {
		if !slices.Contains(t.Columns, c) {
			t.Columns = append(t.Columns, c)
		}
	}
}

// Cells flattens a row in column order. Missing values become "".
func (t Table) Cells(r Row) []string {
	cells := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cells[i] = r[c]
	}
	return cells
}

func rowFromCells(columns, cells []string) Row {
	r := make(Row, len(columns))
	for i, c := range columns {
		if i < len(cells) {
			r[c] = cells[i]
		} else {
			r[c] = ""
		}
	}
	return r
}

// sortedKeys is the header of a table created from a single row.
func sortedKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateIdentifier checks a table identifier.
func ValidateIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("invalid table identifier %q", name)
	}
	return nil
}

// Store is the external record store.
type Store interface {
	ReadPostings(ctx context.Context) (Table, error)
	ReadCandidates(ctx context.Context) (Table, error)
	// ReplaceCandidates rewrites the whole candidate table, or nothing.
	ReplaceCandidates(ctx context.Context, t Table) error
	AppendCandidate(ctx context.Context, r Row) error
}
