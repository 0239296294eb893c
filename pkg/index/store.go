// Package index implements the durable path -> FileEntry index (the Index
// Store). It is backed by a single-table SQLite database and serializes all
// mutation commands through a single goroutine so that only one writer ever
// touches the underlying *sql.DB.
package index

import (
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/syncore-project/syncore/pkg/logging"
	"github.com/syncore-project/syncore/pkg/model"
)

// schema defines the single table backing the index, matching the column
// layout mandated for the index persistence contract: filepath is the
// primary key, filehash is hex-encoded, size and modified are integers
// (modified stored as whole seconds since epoch).
const schema = `
CREATE TABLE IF NOT EXISTS filehash (
	filepath TEXT PRIMARY KEY,
	filehash TEXT NOT NULL,
	size INTEGER NOT NULL,
	modified INTEGER NOT NULL
);
`

// ErrIndexFailure indicates a storage-level error that aborts the current
// batch. Callers (the reconciler) must treat this as fatal for the
// reconciliation pass in progress; the index itself is left unmodified
// because every batch operation executes inside a single transaction.
var ErrIndexFailure = errors.New("index failure")

// command is the sum type of requests accepted on the store's inbox. Only one
// goroutine ever drains this channel, so no command implementation needs to
// be safe for concurrent execution against the database.
type command struct {
	kind    commandKind
	path    string
	entries []model.FileEntry
	reply   chan response
}

type commandKind int

const (
	cmdGet commandKind = iota
	cmdScanAll
	cmdBulkInsert
	cmdBulkUpdate
	cmdBulkDelete
)

type response struct {
	entry   *model.FileEntry
	entries []model.FileEntry
	err     error
}

// Store is the durable index: a mapping from absolute path to FileEntry,
// backed by an embedded SQLite database and accessed exclusively through a
// command channel drained by a single dedicated goroutine.
type Store struct {
	inbox  chan command
	done   chan struct{}
	logger *logging.Logger
}

// Open creates (if necessary) and opens the index database at path, starts
// its dedicated writer goroutine, and returns the ready-to-use Store.
func Open(path string, logger *logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open index database")
	}
	// Single-writer discipline is enforced at the application level (one
	// goroutine draining the inbox), but we also cap the driver's pool to one
	// connection so that SQLite itself never sees concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "unable to initialize index schema")
	}

	s := &Store{
		inbox:  make(chan command, 1024),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.run(db)
	return s, nil
}

// Close closes the inbox, causing the writer goroutine to finish draining any
// queued commands and then exit.
func (s *Store) Close() {
	close(s.inbox)
	<-s.done
}

func (s *Store) run(db *sql.DB) {
	defer close(s.done)
	defer db.Close()
	for cmd := range s.inbox {
		switch cmd.kind {
		case cmdGet:
			cmd.reply <- s.get(db, cmd.path)
		case cmdScanAll:
			cmd.reply <- s.scanAll(db)
		case cmdBulkInsert:
			cmd.reply <- s.bulkInsert(db, cmd.entries)
		case cmdBulkUpdate:
			cmd.reply <- s.bulkUpdate(db, cmd.entries)
		case cmdBulkDelete:
			cmd.reply <- s.bulkDelete(db, cmd.entries)
		}
	}
}

// Get performs a point lookup for path, returning (nil, nil) if no row
// matches. The path is compared as an exact string; callers must canonicalize
// before calling.
func (s *Store) Get(path string) (*model.FileEntry, error) {
	reply := make(chan response, 1)
	s.inbox <- command{kind: cmdGet, path: path, reply: reply}
	r := <-reply
	return r.entry, r.err
}

// ScanAll materializes every row in the index. It is intended to be called
// only by the reconciler at the start of a reconciliation pass, against an
// index of bounded size.
func (s *Store) ScanAll() ([]model.FileEntry, error) {
	reply := make(chan response, 1)
	s.inbox <- command{kind: cmdScanAll, reply: reply}
	r := <-reply
	return r.entries, r.err
}

// BulkInsert upserts every entry within a single atomic transaction.
// "Insert" and "update" are unified here: a conflict on path replaces the
// existing row's hash, size, and modified columns.
func (s *Store) BulkInsert(entries []model.FileEntry) error {
	if len(entries) == 0 {
		return nil
	}
	reply := make(chan response, 1)
	s.inbox <- command{kind: cmdBulkInsert, entries: entries, reply: reply}
	return (<-reply).err
}

// BulkUpdate updates hash, size, and modified for each entry's path within a
// single transaction. Paths absent from the index are silently skipped; this
// is not an error.
func (s *Store) BulkUpdate(entries []model.FileEntry) error {
	if len(entries) == 0 {
		return nil
	}
	reply := make(chan response, 1)
	s.inbox <- command{kind: cmdBulkUpdate, entries: entries, reply: reply}
	return (<-reply).err
}

// BulkDelete removes all rows whose path appears in entries, within a single
// transaction. Empty input is a no-op.
func (s *Store) BulkDelete(entries []model.FileEntry) error {
	if len(entries) == 0 {
		return nil
	}
	reply := make(chan response, 1)
	s.inbox <- command{kind: cmdBulkDelete, entries: entries, reply: reply}
	return (<-reply).err
}

func (s *Store) get(db *sql.DB, path string) response {
	row := db.QueryRow(`SELECT filepath, filehash, size, modified FROM filehash WHERE filepath = ?`, path)
	var e model.FileEntry
	var modified int64
	if err := row.Scan(&e.Path, &e.Hash, &e.Size, &modified); err != nil {
		if err == sql.ErrNoRows {
			return response{}
		}
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}
	e.Modified = time.Unix(modified, 0)
	return response{entry: &e}
}

func (s *Store) scanAll(db *sql.DB) response {
	rows, err := db.Query(`SELECT filepath, filehash, size, modified FROM filehash`)
	if err != nil {
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}
	defer rows.Close()

	var entries []model.FileEntry
	for rows.Next() {
		var e model.FileEntry
		var modified int64
		if err := rows.Scan(&e.Path, &e.Hash, &e.Size, &modified); err != nil {
			return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
		}
		e.Modified = time.Unix(modified, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}
	return response{entries: entries}
}

func (s *Store) bulkInsert(db *sql.DB, entries []model.FileEntry) response {
	tx, err := db.Begin()
	if err != nil {
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO filehash (filepath, filehash, size, modified) VALUES (?, ?, ?, ?)
		ON CONFLICT(filepath) DO UPDATE SET filehash = excluded.filehash, size = excluded.size, modified = excluded.modified
	`)
	if err != nil {
		tx.Rollback()
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}
	defer stmt.Close()

	for _, e := range entries {
		if !utf8.ValidString(e.Path) {
			s.logger.Warn(fmt.Errorf("skipping non-UTF-8 path in bulk insert"))
			continue
		}
		if _, err := stmt.Exec(e.Path, e.Hash, e.Size, e.Modified.Truncate(time.Second).Unix()); err != nil {
			tx.Rollback()
			return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
		}
	}

	if err := tx.Commit(); err != nil {
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}
	return response{}
}

func (s *Store) bulkUpdate(db *sql.DB, entries []model.FileEntry) response {
	tx, err := db.Begin()
	if err != nil {
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}

	stmt, err := tx.Prepare(`UPDATE filehash SET filehash = ?, size = ?, modified = ? WHERE filepath = ?`)
	if err != nil {
		tx.Rollback()
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}
	defer stmt.Close()

	for _, e := range entries {
		if !utf8.ValidString(e.Path) {
			s.logger.Warn(fmt.Errorf("skipping non-UTF-8 path in bulk update"))
			continue
		}
		if _, err := stmt.Exec(e.Hash, e.Size, e.Modified.Truncate(time.Second).Unix(), e.Path); err != nil {
			tx.Rollback()
			return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
		}
	}

	if err := tx.Commit(); err != nil {
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}
	return response{}
}

func (s *Store) bulkDelete(db *sql.DB, entries []model.FileEntry) response {
	tx, err := db.Begin()
	if err != nil {
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}

	stmt, err := tx.Prepare(`DELETE FROM filehash WHERE filepath = ?`)
	if err != nil {
		tx.Rollback()
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.Path); err != nil {
			tx.Rollback()
			return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
		}
	}

	if err := tx.Commit(); err != nil {
		return response{err: errors.Wrap(ErrIndexFailure, err.Error())}
	}
	return response{}
}
