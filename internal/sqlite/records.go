package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/mesh-intelligence/stage/pkg/collection"
	"github.com/mesh-intelligence/stage/pkg/types"
)

// recordType is the element descriptor of every record collection.
var recordType = reflect.TypeFor[*types.Record]()

// timeLayout is fixed-width so that stored timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Result counts what a reconciliation pass did.
type Result struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
	Missing   int `json:"missing"` // deletes that matched no stored row
}

// RecordStore reads records into tracked collections and writes their
// changesets back.
type RecordStore struct {
	backend *Backend
}

// db returns the open database. The caller must hold backend.mu.
func (s *RecordStore) db() (*sql.DB, error) {
	if !s.backend.attached {
		return nil, types.ErrBackendDetached
	}
	return s.backend.db, nil
}

const selectRecord = "SELECT record_id, kind, name, body, checksum, created_at, updated_at FROM records"

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*types.Record, error) {
	var r types.Record
	var checksum int64
	var createdAt, updatedAt string
	if err := row.Scan(&r.RecordID, &r.Kind, &r.Name, &r.Body, &checksum, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	r.Checksum = uint64(checksum)

	var err error
	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing record created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing record updated_at: %w", err)
	}
	return &r, nil
}

// Get returns the record with the given ID.
// Returns ErrInvalidID if id is empty, ErrNotFound if no record matches.
func (s *RecordStore) Get(ctx context.Context, id string) (*types.Record, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()

	db, err := s.db()
	if err != nil {
		return nil, err
	}
	return scanRecord(db.QueryRowContext(ctx, selectRecord+" WHERE record_id = ?", id))
}

// List returns records of kind, or all records when kind is empty, ordered
// by creation time.
func (s *RecordStore) List(ctx context.Context, kind string) ([]*types.Record, error) {
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()

	db, err := s.db()
	if err != nil {
		return nil, err
	}

	query := selectRecord
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at, record_id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []*types.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Load returns a tracked collection whose baseline is List(ctx, kind).
func (s *RecordStore) Load(ctx context.Context, kind string) (*collection.Tracked[*types.Record], error) {
	records, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	return collection.NewTrackedOf(recordType, records...)
}

// Reconcile applies the changes staged in t. A collection with nothing dirty
// or trashed is only marked reconciled; no transaction is opened.
func (s *RecordStore) Reconcile(ctx context.Context, t *collection.Tracked[*types.Record]) (Result, error) {
	skip := !t.HasDirty() && !t.HasTrashed()
	cs, err := t.Reconcile()
	if err != nil {
		return Result{}, err
	}
	if skip {
		return Result{Unchanged: len(cs.Keep)}, nil
	}
	return s.Apply(ctx, cs)
}

// Apply writes cs in one transaction: every Insert is upserted and every
// Delete removed by ID. Inserts without an ID get a new UUID v7, written back
// to the record. An insert whose stored checksum matches is left alone.
func (s *RecordStore) Apply(ctx context.Context, cs collection.Changeset[*types.Record]) (Result, error) {
	for _, r := range cs.Insert {
		if err := r.Validate(); err != nil {
			return Result{}, fmt.Errorf("record %q: %w", r.Name, err)
		}
	}

	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()

	db, err := s.db()
	if err != nil {
		return Result{}, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var res Result
	assigned := make(map[*types.Record]string)
	for _, r := range cs.Insert {
		outcome, id, err := upsertRecord(ctx, tx, r)
		if err != nil {
			return Result{}, err
		}
		if id != r.RecordID {
			assigned[r] = id
		}
		switch outcome {
		case outcomeInserted:
			res.Inserted++
		case outcomeUpdated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}
	for _, r := range cs.Delete {
		if r == nil || r.RecordID == "" {
			res.Missing++
			continue
		}
		n, err := deleteRecord(ctx, tx, r.RecordID)
		if err != nil {
			return Result{}, err
		}
		if n == 0 {
			res.Missing++
		} else {
			res.Deleted++
		}
	}
	res.Unchanged += len(cs.Keep)

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit: %w", err)
	}
	// IDs are only visible to callers once the transaction has committed.
	for r, id := range assigned {
		r.RecordID = id
	}

	s.backend.logger.Debug("changeset applied",
		"inserted", res.Inserted, "updated", res.Updated, "unchanged", res.Unchanged,
		"deleted", res.Deleted, "missing", res.Missing)
	return res, nil
}

type upsertOutcome int

const (
	outcomeUnchanged upsertOutcome = iota
	outcomeInserted
	outcomeUpdated
)

func upsertRecord(ctx context.Context, tx *sql.Tx, r *types.Record) (upsertOutcome, string, error) {
	sum := r.Sum()
	r.Checksum = sum
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}

	id := r.RecordID
	if id != "" {
		var stored int64
		err := tx.QueryRowContext(ctx, "SELECT checksum FROM records WHERE record_id = ?", id).Scan(&stored)
		switch {
		case err == nil:
			if uint64(stored) == sum {
				return outcomeUnchanged, id, nil
			}
			_, err := tx.ExecContext(ctx,
				"UPDATE records SET kind = ?, name = ?, body = ?, checksum = ?, updated_at = ? WHERE record_id = ?",
				r.Kind, r.Name, r.Body, int64(sum), r.UpdatedAt.UTC().Format(timeLayout), id)
			if err != nil {
				return 0, "", fmt.Errorf("updating record %s: %w", id, err)
			}
			return outcomeUpdated, id, nil
		case !errors.Is(err, sql.ErrNoRows):
			return 0, "", fmt.Errorf("reading record %s: %w", id, err)
		}
	} else {
		id = generateUUID()
	}

	_, err := tx.ExecContext(ctx,
		"INSERT INTO records (record_id, kind, name, body, checksum, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, r.Kind, r.Name, r.Body, int64(sum),
		r.CreatedAt.UTC().Format(timeLayout), r.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, "", fmt.Errorf("inserting record %s: %w", id, err)
	}
	return outcomeInserted, id, nil
}

func deleteRecord(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM records WHERE record_id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("deleting record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting record %s: %w", id, err)
	}
	return n, nil
}
