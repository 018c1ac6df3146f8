package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"tokenmeta/internal/metadata/models"
	"tokenmeta/pkg/platform/sentinel"
)

const (
	badgerKeyPrefix = "metadata:"
	// badgerTxnAttempts bounds retries when optimistic transactions collide.
	badgerTxnAttempts = 3
)

// Badger persists metadata objects as JSON documents in an embedded
// key-value store, for single-node deployments without Postgres.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures OpenBadger. An empty Dir opens an in-memory
// database.
type BadgerOptions struct {
	Dir    string
	Logger *slog.Logger
}

func OpenBadger(cfg BadgerOptions) (*Badger, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{cfg.Logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (s *Badger) Close() error {
	return s.db.Close()
}

func (s *Badger) FindOne(_ context.Context, subject string) (*models.Object, error) {
	var obj *models.Object
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		obj, err = readObject(txn, subject)
		return err
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *Badger) InsertOne(ctx context.Context, obj *models.Object) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(obj.Subject))
		if err == nil {
			return fmt.Errorf("subject %s: %w", obj.Subject, sentinel.ErrConflict)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check subject: %w", err)
		}
		return writeObject(txn, obj)
	})
}

func (s *Badger) UpdateOne(ctx context.Context, subject string, u models.Update) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		obj, err := readObject(txn, subject)
		if err != nil {
			return err
		}
		if err := obj.Apply(u); err != nil {
			return err
		}
		return writeObject(txn, obj)
	})
}

func (s *Badger) Find(_ context.Context, subjects []string) ([]*models.Object, error) {
	out := make([]*models.Object, 0, len(subjects))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, subject := range subjects {
			obj, err := readObject(txn, subject)
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, obj)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Badger) Ping(context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("badger closed: %w", sentinel.ErrUnavailable)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying when badger detects a
// conflicting concurrent transaction.
func (s *Badger) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for range badgerTxnAttempts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("badger transaction retries exhausted: %w", sentinel.ErrConflict)
}

func readObject(txn *badger.Txn, subject string) (*models.Object, error) {
	item, err := txn.Get(badgerKey(subject))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("read subject: %w", err)
	}
	var obj models.Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode subject %s: %w", subject, err)
	}
	return &obj, nil
}

func writeObject(txn *badger.Txn, obj *models.Object) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode subject %s: %w", obj.Subject, err)
	}
	return txn.Set(badgerKey(obj.Subject), raw)
}

func badgerKey(subject string) []byte {
	return []byte(badgerKeyPrefix + subject)
}

type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Info(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(fmt.Sprintf(format, args...))
}
