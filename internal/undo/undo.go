// internal/undo/undo.go
package undo

import (
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	kerr "kiln/internal/errors"
	"kiln/internal/storage"
	"kiln/internal/timeline"
)

// Op names the mutating operation a record reverses.
type Op string

const (
	OpSave    Op = "save"
	OpDelete  Op = "delete"
	OpSplit   Op = "split"
	OpLabel   Op = "label"
	OpComment Op = "comment"
)

// Record captures the minimal state needed to reverse the most recent
// mutating operation. Exactly one record is retained: every mutation
// overwrites the slot, and undo consumes it.
type Record struct {
	ID        string    `json:"id"`
	Op        Op        `json:"op"`
	Project   string    `json:"project"`
	CreatedAt time.Time `json:"created_at"`

	// save: the created version id and the head it displaced.
	VersionID    int `json:"version_id,omitempty"`
	PreviousHead int `json:"previous_head,omitempty"`

	// delete: the removed nodes with their edges, and the old head.
	Versions []timeline.Version `json:"versions,omitempty"`

	// split: the project the split created.
	NewProject string `json:"new_project,omitempty"`

	// label / comment: the value the field held before.
	PreviousLabel   string `json:"previous_label,omitempty"`
	PreviousMessage string `json:"previous_message,omitempty"`
}

var slotKey = storage.Key("undo", "last")

// Log is the single-slot undo log.
type Log struct {
	db *badger.DB
}

func NewLog(db *badger.DB) *Log {
	return &Log{db: db}
}

// Record stores rec as the one reversible operation, superseding any
// prior record.
func (l *Log) Record(rec *Record) error {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now()
	return l.db.Update(func(txn *badger.Txn) error {
		return storage.PutJSON(txn, slotKey, rec)
	})
}

// Peek returns the retained record without consuming it.
func (l *Log) Peek() (*Record, error) {
	var rec Record
	err := l.db.View(func(txn *badger.Txn) error {
		err := storage.GetJSON(txn, slotKey, &rec)
		if err == badger.ErrKeyNotFound {
			return kerr.NothingToUndo()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Take returns the retained record and clears the slot. Undo is not
// stackable: once consumed, a second undo reports NothingToUndo.
func (l *Log) Take() (*Record, error) {
	var rec Record
	err := l.db.Update(func(txn *badger.Txn) error {
		err := storage.GetJSON(txn, slotKey, &rec)
		if err == badger.ErrKeyNotFound {
			return kerr.NothingToUndo()
		}
		if err != nil {
			return err
		}
		return txn.Delete(slotKey)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Clear drops any retained record.
func (l *Log) Clear() error {
	return l.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(slotKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}
