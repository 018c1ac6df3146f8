package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"tokenmeta/internal/metadata/models"
	"tokenmeta/pkg/platform/sentinel"
	"tokenmeta/pkg/platform/tx"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// PostgresStore persists metadata objects across three tables: the object
// row, its scalars and its entry histories.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed metadata store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate metadata schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *PostgresStore) FindOne(ctx context.Context, subject string) (*models.Object, error) {
	objects, err := s.Find(ctx, []string{subject})
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return objects[0], nil
}

// Find loads every existing subject in one snapshot. Results follow the
// request order; unknown subjects are skipped.
func (s *PostgresStore) Find(ctx context.Context, subjects []string) ([]*models.Object, error) {
	found := make(map[string]*models.Object, len(subjects))
	err := tx.Run(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		func(ctx context.Context, t *sql.Tx) error {
			if err := loadObjects(ctx, t, subjects, found); err != nil {
				return err
			}
			if len(found) == 0 {
				return nil
			}
			if err := loadScalars(ctx, t, subjects, found); err != nil {
				return err
			}
			return loadEntries(ctx, t, subjects, found)
		})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Object, 0, len(found))
	for _, subject := range subjects {
		if obj, ok := found[subject]; ok {
			out = append(out, obj)
			delete(found, subject)
		}
	}
	return out, nil
}

func loadObjects(ctx context.Context, t *sql.Tx, subjects []string, found map[string]*models.Object) error {
	rows, err := t.QueryContext(ctx,
		`SELECT subject FROM metadata_objects WHERE subject = ANY($1)`, pq.Array(subjects))
	if err != nil {
		return fmt.Errorf("find metadata objects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return fmt.Errorf("scan metadata object: %w", err)
		}
		found[subject] = &models.Object{
			Subject: subject,
			Scalars: map[string]models.Value{},
			Entries: map[string][]models.Entry{},
		}
	}
	return rows.Err()
}

func loadScalars(ctx context.Context, t *sql.Tx, subjects []string, found map[string]*models.Object) error {
	rows, err := t.QueryContext(ctx,
		`SELECT subject, name, value FROM metadata_scalars WHERE subject = ANY($1)`, pq.Array(subjects))
	if err != nil {
		return fmt.Errorf("find metadata scalars: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			subject, name string
			raw           []byte
		)
		if err := rows.Scan(&subject, &name, &raw); err != nil {
			return fmt.Errorf("scan metadata scalar: %w", err)
		}
		value, err := models.Parse(raw)
		if err != nil {
			return fmt.Errorf("decode scalar %s of %s: %w", name, subject, err)
		}
		if obj, ok := found[subject]; ok {
			obj.Scalars[name] = value
		}
	}
	return rows.Err()
}

func loadEntries(ctx context.Context, t *sql.Tx, subjects []string, found map[string]*models.Object) error {
	rows, err := t.QueryContext(ctx, `
		SELECT subject, property, sequence_number, value, signatures
		FROM metadata_entries
		WHERE subject = ANY($1)
		ORDER BY position`, pq.Array(subjects))
	if err != nil {
		return fmt.Errorf("find metadata entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			subject, property string
			entry             models.Entry
			rawValue, rawSigs []byte
		)
		if err := rows.Scan(&subject, &property, &entry.SequenceNumber, &rawValue, &rawSigs); err != nil {
			return fmt.Errorf("scan metadata entry: %w", err)
		}
		if entry.Value, err = models.Parse(rawValue); err != nil {
			return fmt.Errorf("decode entry %s of %s: %w", property, subject, err)
		}
		if err := json.Unmarshal(rawSigs, &entry.Signatures); err != nil {
			return fmt.Errorf("decode signatures %s of %s: %w", property, subject, err)
		}
		if obj, ok := found[subject]; ok {
			obj.Entries[property] = append(obj.Entries[property], entry)
		}
	}
	return rows.Err()
}

// InsertOne claims the subject with a conditional insert, then writes the
// object's properties in the same transaction.
func (s *PostgresStore) InsertOne(ctx context.Context, obj *models.Object) error {
	return translate(tx.Run(ctx, s.db, nil, func(ctx context.Context, t *sql.Tx) error {
		res, err := t.ExecContext(ctx,
			`INSERT INTO metadata_objects (subject) VALUES ($1) ON CONFLICT (subject) DO NOTHING`, obj.Subject)
		if err != nil {
			return fmt.Errorf("insert metadata object: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert metadata object: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("subject %s: %w", obj.Subject, sentinel.ErrConflict)
		}
		for name, value := range obj.Scalars {
			if err := upsertScalar(ctx, t, obj.Subject, name, value); err != nil {
				return err
			}
		}
		for property, history := range obj.Entries {
			expected := models.NoHistory
			for _, entry := range history {
				if err := appendEntry(ctx, t, obj.Subject, models.Append{Property: property, Entry: entry, ExpectedMax: expected}); err != nil {
					return err
				}
				if entry.SequenceNumber > expected {
					expected = entry.SequenceNumber
				}
			}
		}
		return nil
	}))
}

// UpdateOne locks the object row, overwrites scalars and appends entries
// only where the stored max sequence number still matches the expectation.
func (s *PostgresStore) UpdateOne(ctx context.Context, subject string, u models.Update) error {
	return translate(tx.Run(ctx, s.db, nil, func(ctx context.Context, t *sql.Tx) error {
		var locked string
		err := t.QueryRowContext(ctx,
			`SELECT subject FROM metadata_objects WHERE subject = $1 FOR UPDATE`, subject).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock metadata object: %w", err)
		}
		for name, value := range u.Set {
			if err := upsertScalar(ctx, t, subject, name, value); err != nil {
				return err
			}
		}
		for _, a := range u.Appends {
			if err := appendEntry(ctx, t, subject, a); err != nil {
				return err
			}
		}
		if _, err := t.ExecContext(ctx,
			`UPDATE metadata_objects SET updated_at = now() WHERE subject = $1`, subject); err != nil {
			return fmt.Errorf("touch metadata object: %w", err)
		}
		return nil
	}))
}

func upsertScalar(ctx context.Context, t *sql.Tx, subject, name string, value models.Value) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode scalar %s: %w", name, err)
	}
	_, err = t.ExecContext(ctx, `
		INSERT INTO metadata_scalars (subject, name, value)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (subject, name) DO UPDATE SET value = EXCLUDED.value`,
		subject, name, string(raw))
	if err != nil {
		return fmt.Errorf("upsert scalar %s: %w", name, err)
	}
	return nil
}

func appendEntry(ctx context.Context, t *sql.Tx, subject string, a models.Append) error {
	rawValue, err := json.Marshal(a.Entry.Value)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", a.Property, err)
	}
	sigs := a.Entry.Signatures
	if sigs == nil {
		sigs = []models.Signature{}
	}
	rawSigs, err := json.Marshal(sigs)
	if err != nil {
		return fmt.Errorf("encode signatures %s: %w", a.Property, err)
	}
	res, err := t.ExecContext(ctx, `
		INSERT INTO metadata_entries (subject, property, sequence_number, value, signatures)
		SELECT $1::text, $2::text, $3::bigint, $4::json, $5::jsonb
		WHERE COALESCE(
			(SELECT MAX(sequence_number) FROM metadata_entries WHERE subject = $1 AND property = $2),
			-1) = $6::bigint`,
		subject, a.Property, a.Entry.SequenceNumber, string(rawValue), string(rawSigs), a.ExpectedMax)
	if err != nil {
		return fmt.Errorf("append entry %s: %w", a.Property, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append entry %s: %w", a.Property, err)
	}
	if affected == 0 {
		return fmt.Errorf("property %s changed concurrently: %w", a.Property, sentinel.ErrConflict)
	}
	return nil
}

// translate maps unique violations to sentinel.ErrConflict.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, sentinel.ErrConflict)
	}
	return err
}
