package records

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// CSVStore keeps one CSV file per table inside a directory.
type CSVStore struct {
	dir        string
	postings   string
	candidates string
	mu         sync.Mutex
}

// NewCSVStore validates the table identifiers. The directory must exist.
func NewCSVStore(dir, postings, candidates string) (*CSVStore, error) {
	for _, name := range []string{postings, candidates} {
		if err := ValidateIdentifier(name); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("csv store directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("csv store directory: %s is not a directory", dir)
	}

	return &CSVStore{dir: dir, postings: postings, candidates: candidates}, nil
}

func (s *CSVStore) path(table string) string {
	return filepath.Join(s.dir, table+".csv")
}

func (s *CSVStore) ReadPostings(_ context.Context) (Table, error) {
	return s.read(s.postings)
}

func (s *CSVStore) ReadCandidates(_ context.Context) (Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(s.candidates)
}

func (s *CSVStore) read(table string) (Table, error) {
	f, err := os.Open(s.path(table))
	if err != nil {
		return Table{}, newError("read", table, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, newError("read", table, err)
	}

	t := Table{Columns: header}
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, newError("read", table, err)
		}
		t.Rows = append(t.Rows, rowFromCells(header, cells))
	}

	return t, nil
}

// ReplaceCandidates writes a temporary file and renames it over the table.
func (s *CSVStore) ReplaceCandidates(_ context.Context, t Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.replace(s.candidates, t); err != nil {
		return newError("replace", s.candidates, err)
	}
	return nil
}

func (s *CSVStore) replace(table string, t Table) error {
	tmp, err := os.CreateTemp(s.dir, table+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Columns); err != nil {
		tmp.Close()
		return err
	}
	for _, r := range t.Rows {
		if err := w.Write(t.Cells(r)); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.path(table))
}

// AppendCandidate adds one row in the order of the existing header. A missing
// table is created with the row's keys as header.
func (s *CSVStore) AppendCandidate(_ context.Context, r Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.append(s.candidates, r); err != nil {
		return newError("append", s.candidates, err)
	}
	return nil
}

func (s *CSVStore) append(table string, r Row) error {
	f, err := os.OpenFile(s.path(table), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header, err := csv.NewReader(f).Read()
	switch {
	case errors.Is(err, io.EOF):
		header = sortedKeys(r)
		if err := w.Write(header); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	if err := w.Write(Table{Columns: header}.Cells(r)); err != nil {
		return err
	}
	w.Flush()

	return w.Error()
}
