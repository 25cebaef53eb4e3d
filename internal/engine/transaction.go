package engine

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// ErrTransactionDone is returned when a finished transaction is used again.
var ErrTransactionDone = errors.New("transaction already committed")

// Transaction batches edits against one base operation.
type Transaction struct {
	repo    *MutableRepo
	base    *ReadonlyRepo
	started time.Time
	tags    map[string]string
	done    bool
}

// Repo returns the mutable repo to edit.
func (tx *Transaction) Repo() *MutableRepo { return tx.repo }

// Base returns the repo the transaction started from.
func (tx *Transaction) Base() *ReadonlyRepo { return tx.base }

// SetTag attaches a key/value pair to the operation metadata.
func (tx *Transaction) SetTag(key, value string) {
	if tx.tags == nil {
		tx.tags = map[string]string{}
	}
	tx.tags[key] = value
}

func (tx *Transaction) writeOperation(description string) (*Operation, error) {
	if tx.done {
		return nil, ErrTransactionDone
	}
	m := tx.repo
	if err := m.normalizeHeads(); err != nil {
		return nil, err
	}
	op := &Operation{
		Parents:  append([]OperationID(nil), m.parentOps...),
		View:     m.view.Clone(),
		Metadata: newMetadata(description, tx.started),
		Rewrites: maps.Clone(m.rewrites),
	}
	if len(tx.tags) > 0 {
		op.Metadata.Tags = maps.Clone(tx.tags)
	}
	id, err := m.store.WriteOperation(op)
	if err != nil {
		return nil, fmt.Errorf("write operation: %w", err)
	}
	op.ID = id
	tx.done = true
	return op, nil
}

// Commit writes the operation, publishes it as an operation head in place of
// the base operation, and returns the repo at the new operation.
func (tx *Transaction) Commit(description string) (*ReadonlyRepo, error) {
	op, err := tx.writeOperation(description)
	if err != nil {
		return nil, err
	}
	if err := tx.repo.store.UpdateOpHeads(op.Parents, op.ID); err != nil {
		return nil, fmt.Errorf("update operation heads: %w", err)
	}
	return repoFromOperation(tx.repo.store, op)
}

// WriteUnpublished writes the operation without making it an operation head.
func (tx *Transaction) WriteUnpublished(description string) (*ReadonlyRepo, error) {
	op, err := tx.writeOperation(description)
	if err != nil {
		return nil, err
	}
	return repoFromOperation(tx.repo.store, op)
}
