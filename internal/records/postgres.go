package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// headerPosition holds the column names of a table.
const headerPosition = 0

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

// PostgresStore keeps each table as (position, cells) rows; position 0 is the header.
type PostgresStore struct {
	pool       *pgxpool.Pool
	postings   string
	candidates string
}

// NewPostgresStore validates the table identifiers.
func NewPostgresStore(pool *pgxpool.Pool, postings, candidates string) (*PostgresStore, error) {
	for _, name := range []string{postings, candidates} {
		if err := ValidateIdentifier(name); err != nil {
			return nil, err
		}
	}

	return &PostgresStore{pool: pool, postings: postings, candidates: candidates}, nil
}

// EnsureSchema creates both tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, table := range []string{s.postings, s.candidates} {
		sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			position integer PRIMARY KEY,
			cells    text[]  NOT NULL
		)`, pgx.Identifier{table}.Sanitize())

		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return newError("create", table, err)
		}
	}
	return nil
}

func (s *PostgresStore) ReadPostings(ctx context.Context) (Table, error) {
	return s.read(ctx, s.postings)
}

func (s *PostgresStore) ReadCandidates(ctx context.Context) (Table, error) {
	return s.read(ctx, s.candidates)
}

func (s *PostgresStore) read(ctx context.Context, table string) (Table, error) {
	sql := fmt.Sprintf(`SELECT position, cells FROM %s ORDER BY position`, pgx.Identifier{table}.Sanitize())

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return Table{}, newError("read", table, err)
	}
	defer rows.Close()

	var t Table
	for rows.Next() {
		var (
			position int
			cells    []string
		)
		if err := rows.Scan(&position, &cells); err != nil {
			return Table{}, newError("read", table, err)
		}

		if position == headerPosition {
			t.Columns = cells
			continue
		}
		t.Rows = append(t.Rows, rowFromCells(t.Columns, cells))
	}
	if err := rows.Err(); err != nil {
		return Table{}, newError("read", table, err)
	}

	return t, nil
}

// ReplaceCandidates deletes and copies the whole table in one transaction.
func (s *PostgresStore) ReplaceCandidates(ctx context.Context, t Table) error {
	table := s.candidates

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, pgx.Identifier{table}.Sanitize())); err != nil {
			return err
		}

		data := make([][]any, 0, len(t.Rows)+1)
		data = append(data, []any{headerPosition, t.Columns})
		for i, r := range t.Rows {
			data = append(data, []any{i + 1, t.Cells(r)})
		}

		n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, []string{"position", "cells"}, pgx.CopyFromRows(data))
		if err != nil {
			return err
		}
		if int(n) != len(data) {
			return fmt.Errorf("copied %d of %d rows", n, len(data))
		}
		return nil
	})
	if err != nil {
		return newError("replace", table, err)
	}
	return nil
}

// AppendCandidate adds one row after the last position, in header order.
func (s *PostgresStore) AppendCandidate(ctx context.Context, r Row) error {
	table := s.candidates
	ident := pgx.Identifier{table}.Sanitize()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`LOCK TABLE %s IN EXCLUSIVE MODE`, ident)); err != nil {
			return err
		}

		var header []string
		err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT cells FROM %s WHERE position = $1`, ident), headerPosition).Scan(&header)
		if errors.Is(err, pgx.ErrNoRows) {
			header = sortedKeys(r)
			if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (position, cells) VALUES ($1, $2)`, ident), headerPosition, header); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (position, cells) SELECT COALESCE(MAX(position), 0) + 1, $1::text[] FROM %s`, ident, ident),
			Table{Columns: header}.Cells(r),
		)
		return err
	})
	if err != nil {
		return newError("append", table, err)
	}
	return nil
}
