package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/emberworks/ember-go/core"
)

// Key layout:
//
//	sess:{sessionID}          -> sessionRecord (msgpack)
//	turn:{sessionID}:{seq}    -> core.Turn (msgpack), seq zero-padded
//
// The zero-padded sequence number keeps badger's lexicographic iteration
// order equal to insertion order.
const (
	sessPrefix = "sess:"
	turnPrefix = "turn:"
	seqDigits  = 10
)

// sessionRecord is the per-session metadata row. TurnCount doubles as the
// next sequence number; updating it in the same transaction as the turn
// writes makes Append all-or-nothing.
type sessionRecord struct {
	Session   core.Session `msgpack:"session"`
	TurnCount int          `msgpack:"turn_count"`
	Preview   string       `msgpack:"preview"`
}

// BadgerStore keeps transcripts in a badger database.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// BadgerOptions configures the store.
type BadgerOptions struct {
	// Dir is the database directory. Required unless InMemory is set.
	Dir string

	// InMemory skips disk persistence. Used in tests.
	InMemory bool
}

// NewBadgerStore opens (or creates) the database.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("session: badger dir is required")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("session: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// GetOrCreate returns the session, creating it on first use.
func (s *BadgerStore) GetOrCreate(_ context.Context, sessionID, ownerID string) (core.Session, error) {
	var sess core.Session
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, sessionID)
		if err == nil {
			sess = rec.Session
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		now := time.Now().UTC()
		rec = sessionRecord{Session: core.Session{
			ID:           sessionID,
			OwnerID:      ownerID,
			CreatedAt:    now,
			LastActiveAt: now,
		}}
		sess = rec.Session
		return putRecord(txn, rec)
	})
	return sess, err
}

// Append persists turns in one transaction.
func (s *BadgerStore) Append(_ context.Context, sessionID string, turns ...core.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, sessionID)
		if errors.Is(err, ErrNotFound) {
			now := time.Now().UTC()
			rec = sessionRecord{Session: core.Session{
				ID:           sessionID,
				CreatedAt:    now,
				LastActiveAt: now,
			}}
			err = nil
		}
		if err != nil {
			return err
		}

		for i, turn := range turns {
			data, err := msgpack.Marshal(turn)
			if err != nil {
				return fmt.Errorf("session: encode turn: %w", err)
			}
			if err := txn.Set(turnKey(sessionID, rec.TurnCount+i), data); err != nil {
				return fmt.Errorf("session: write turn: %w", err)
			}
		}
		rec.TurnCount += len(turns)
		rec.Session.LastActiveAt = time.Now().UTC()
		if rec.Preview == "" {
			rec.Preview = preview(turns)
		}
		return putRecord(txn, rec)
	})
}

// History pages backwards: skip the offset most recent turns, return up to
// limit turns before those, oldest first.
func (s *BadgerStore) History(_ context.Context, sessionID string, limit, offset int) ([]core.Turn, error) {
	var turns []core.Turn
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, sessionID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		start, end := historyRange(rec.TurnCount, limit, offset)
		for seq := start; seq < end; seq++ {
			item, err := txn.Get(turnKey(sessionID, seq))
			if err != nil {
				return fmt.Errorf("session: read turn %d: %w", seq, err)
			}
			var turn core.Turn
			if err := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &turn)
			}); err != nil {
				return fmt.Errorf("session: decode turn %d: %w", seq, err)
			}
			turns = append(turns, turn)
		}
		return nil
	})
	return turns, err
}

// ListSessions summarizes sessions, most recently active first.
func (s *BadgerStore) ListSessions(_ context.Context, limit, offset int) ([]core.SessionSummary, error) {
	var out []core.SessionSummary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		type row struct {
			summary    core.SessionSummary
			lastActive time.Time
		}
		var rows []row
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var rec sessionRecord
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("session: decode record: %w", err)
			}
			rows = append(rows, row{
				summary: core.SessionSummary{
					SessionID: rec.Session.ID,
					TurnCount: rec.TurnCount,
					Preview:   rec.Preview,
				},
				lastActive: rec.Session.LastActiveAt,
			})
		}
		sort.Slice(rows, func(i, j int) bool {
			return rows[i].lastActive.After(rows[j].lastActive)
		})
		rows = page(rows, limit, offset)
		for _, r := range rows {
			out = append(out, r.summary)
		}
		return nil
	})
	return out, err
}

// historyRange maps (limit, offset) onto [start, end) turn sequence numbers:
// offset drops the newest turns, limit bounds how many come before those.
func historyRange(total, limit, offset int) (start, end int) {
	end = total - offset
	if end < 0 {
		end = 0
	}
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}
	return start, end
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func getRecord(txn *badger.Txn, sessionID string) (sessionRecord, error) {
	var rec sessionRecord
	item, err := txn.Get([]byte(sessPrefix + sessionID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("session: read record: %w", err)
	}
	if err := item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &rec)
	}); err != nil {
		return rec, fmt.Errorf("session: decode record: %w", err)
	}
	return rec, nil
}

func putRecord(txn *badger.Txn, rec sessionRecord) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode record: %w", err)
	}
	return txn.Set([]byte(sessPrefix+rec.Session.ID), data)
}

func turnKey(sessionID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s:%0*d", turnPrefix, sessionID, seqDigits, seq))
}

// badgerLogger routes badger output through the standard logger, keeping
// warnings and errors and dropping the chatty info/debug levels.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { log.Printf("[SESSION] badger: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { log.Printf("[SESSION] badger: "+f, v...) }
func (badgerLogger) Infof(string, ...interface{})        {}
func (badgerLogger) Debugf(string, ...interface{})       {}
