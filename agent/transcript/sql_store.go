package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

var ErrNilDB = errors.New("transcript db is nil")

type entryRow struct {
	bun.BaseModel `bun:"table:transcript_entries"`

	SessionID string    `bun:"session_id,pk"`
	Seq       int64     `bun:"seq,pk"`
	Payload   string    `bun:"payload,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type sessionRow struct {
	bun.BaseModel `bun:"table:transcript_sessions"`

	SessionID string `bun:"session_id,pk"`
	NextSeq   int64  `bun:"next_seq,notnull"`
}

// callRow indexes every tool call id a session has requested so tool
// results can be checked against it inside the append transaction.
type callRow struct {
	bun.BaseModel `bun:"table:transcript_calls"`

	SessionID string `bun:"session_id,pk"`
	CallID    string `bun:"call_id,pk"`
	Seq       int64  `bun:"seq,notnull"`
}

// SQLStore keeps transcripts in two tables: one row per entry keyed by
// (session_id, seq) and one counter row per session, plus an index of
// requested call ids. The counter UPDATE inside the append transaction
// serializes writers across processes.
type SQLStore struct {
	db    *bun.DB
	locks *sessionLocks
	now   func() time.Time
}

// OpenSQLite opens a file-backed store. The pool is capped at one
// connection so same-process writers never race for the write lock.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	sqldb, err := sql.Open("sqlite", path+sep+"_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return NewSQLStore(ctx, bun.NewDB(sqldb, sqlitedialect.New()))
}

func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return NewSQLStore(ctx, bun.NewDB(sqldb, pgdialect.New()))
}

// NewSQLStore wraps an open bun.DB and creates the schema if missing.
func NewSQLStore(ctx context.Context, db *bun.DB) (*SQLStore, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	for _, model := range []any{(*entryRow)(nil), (*sessionRow)(nil), (*callRow)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create transcript schema: %w", err)
		}
	}
	return &SQLStore{
		db:    db,
		locks: newSessionLocks(),
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SQLStore) Append(ctx context.Context, sessionID string, entry contractx.Entry) (int64, error) {
	if err := checkSession(sessionID); err != nil {
		return 0, err
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	raw, err := encodeEntry(entry)
	if err != nil {
		return 0, err
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	var seq int64
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if entry.Role == contractx.RoleTool {
			known, err := tx.NewSelect().
				Model((*callRow)(nil)).
				Where("session_id = ? AND call_id = ?", sessionID, entry.ToolCallID).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("check call id: %w", err)
			}
			if !known {
				return errUnknownCall(entry.ToolCallID)
			}
		}

		counter := &sessionRow{SessionID: sessionID}
		if _, err := tx.NewInsert().Model(counter).On("CONFLICT (session_id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("ensure counter: %w", err)
		}
		if _, err := tx.NewUpdate().
			Model((*sessionRow)(nil)).
			Set("next_seq = next_seq + 1").
			Where("session_id = ?", sessionID).
			Exec(ctx); err != nil {
			return fmt.Errorf("bump counter: %w", err)
		}
		var next int64
		if err := tx.NewSelect().
			Model((*sessionRow)(nil)).
			Column("next_seq").
			Where("session_id = ?", sessionID).
			Scan(ctx, &next); err != nil {
			return fmt.Errorf("read counter: %w", err)
		}
		seq = next - 1

		row := &entryRow{
			SessionID: sessionID,
			Seq:       seq,
			Payload:   raw,
			CreatedAt: s.now(),
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		if len(entry.ToolCalls) == 0 {
			return nil
		}
		calls := make([]callRow, 0, len(entry.ToolCalls))
		for _, call := range entry.ToolCalls {
			calls = append(calls, callRow{SessionID: sessionID, CallID: call.ID, Seq: seq})
		}
		if _, err := tx.NewInsert().Model(&calls).On("CONFLICT (session_id, call_id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("index call ids: %w", err)
		}
		return nil
	})
	if errors.Is(err, contractx.ErrValidation) {
		return 0, err
	}
	if err != nil {
		return 0, storageErr("append", sessionID, err)
	}

	log.Debug().Str("session_id", sessionID).Int64("sequence", seq).Str("role", string(entry.Role)).Msg("transcript entry appended")
	return seq, nil
}

func (s *SQLStore) Read(ctx context.Context, sessionID string) ([]contractx.Entry, error) {
	if err := checkSession(sessionID); err != nil {
		return nil, err
	}
	var rows []entryRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storageErr("read", sessionID, err)
	}

	entries := make([]contractx.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := decodeEntry(row.Seq, row.Payload)
		if err != nil {
			return nil, storageErr("read", sessionID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear removes every entry and resets the counter so the next append
// gets sequence 0.
func (s *SQLStore) Clear(ctx context.Context, sessionID string) error {
	if err := checkSession(sessionID); err != nil {
		return err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entryRow)(nil)).Where("session_id = ?", sessionID).Exec(ctx); err != nil {
			return fmt.Errorf("delete entries: %w", err)
		}
		if _, err := tx.NewDelete().Model((*callRow)(nil)).Where("session_id = ?", sessionID).Exec(ctx); err != nil {
			return fmt.Errorf("delete call ids: %w", err)
		}
		if _, err := tx.NewDelete().Model((*sessionRow)(nil)).Where("session_id = ?", sessionID).Exec(ctx); err != nil {
			return fmt.Errorf("delete counter: %w", err)
		}
		return nil
	})
	return storageErr("clear", sessionID, err)
}

func (s *SQLStore) Count(ctx context.Context, sessionID string) (int, error) {
	if err := checkSession(sessionID); err != nil {
		return 0, err
	}
	n, err := s.db.NewSelect().Model((*entryRow)(nil)).Where("session_id = ?", sessionID).Count(ctx)
	if err != nil {
		return 0, storageErr("count", sessionID, err)
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
