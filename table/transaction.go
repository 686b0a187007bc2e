// Package table is the typed front end over the raw B-tree engine:
// tables are opened by name inside a write transaction, carry a key and
// value codec, and hand every stored byte back through an AccessGuard.
// A write transaction admits at most one mutable handle per table name
// at a time; all tables opened in a transaction share one freed-page
// set and one staged-write buffer, so Commit and Abort are atomic
// across them.
package table

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/darnuria/pagekv/btree"
	"github.com/darnuria/pagekv/pager"
)

var (
	// ErrTableAlreadyOpen is returned when a write transaction already
	// holds a mutable handle for the requested table name.
	ErrTableAlreadyOpen = errors.New("table already open in this transaction")

	// ErrTableClosed is returned by operations on a closed handle.
	ErrTableClosed = errors.New("table is closed")

	// ErrTxnFinished is returned once a transaction has committed or
	// aborted.
	ErrTxnFinished = errors.New("transaction already finished")
)

// WriteTransaction scopes a batch of table mutations. Every page
// rewritten under it stays in the store's staged-write buffer until
// Commit flushes; Abort drops the staged pages and leaves the previous
// roots untouched. A single transaction is not safe for concurrent use.
type WriteTransaction struct {
	id    uuid.UUID
	store *pager.Store
	log   *zap.Logger

	open  map[string]struct{}
	roots map[string]*btree.RootPointer
	freed *btree.FreedPages
	done  bool
}

// TxnOption configures a WriteTransaction.
type TxnOption func(*WriteTransaction)

// WithTxnLogger attaches a logger for transaction lifecycle events.
func WithTxnLogger(log *zap.Logger) TxnOption {
	return func(txn *WriteTransaction) { txn.log = log }
}

// NewWriteTransaction starts a transaction over the given store. roots
// maps table names to their committed root pointers; a missing or nil
// entry means the table is empty. The map is copied, not retained.
func NewWriteTransaction(store *pager.Store, roots map[string]*btree.RootPointer, opts ...TxnOption) *WriteTransaction {
	txn := &WriteTransaction{
		id:    uuid.New(),
		store: store,
		log:   zap.NewNop(),
		open:  make(map[string]struct{}),
		roots: make(map[string]*btree.RootPointer, len(roots)),
		freed: btree.NewFreedPages(),
	}
	for name, root := range roots {
		txn.roots[name] = root
	}
	for _, opt := range opts {
		opt(txn)
	}
	txn.log.Debug("write transaction started", zap.String("txn", txn.id.String()))
	return txn
}

// ID returns the transaction's identifier.
func (txn *WriteTransaction) ID() uuid.UUID {
	return txn.id
}

func (txn *WriteTransaction) registerOpenTable(name string) error {
	if _, ok := txn.open[name]; ok {
		return fmt.Errorf("table %q: %w", name, ErrTableAlreadyOpen)
	}
	txn.open[name] = struct{}{}
	return nil
}

func (txn *WriteTransaction) closeTable(name string, root *btree.RootPointer) {
	txn.roots[name] = root
	delete(txn.open, name)
}

// releaseTable unregisters a name without updating its root, for the
// close-failure path.
func (txn *WriteTransaction) releaseTable(name string) {
	delete(txn.open, name)
}

// Commit flushes all staged pages, hands the pages freed during the
// transaction to the store for deferred release, and returns the new
// root pointer per table. Every table handle must be closed first.
func (txn *WriteTransaction) Commit() (map[string]*btree.RootPointer, error) {
	if txn.done {
		return nil, ErrTxnFinished
	}
	if len(txn.open) > 0 {
		return nil, fmt.Errorf("commit with %d tables still open", len(txn.open))
	}
	if err := txn.store.Flush(); err != nil {
		return nil, fmt.Errorf("flush staged pages: %w", err)
	}
	txn.store.MarkFreed(txn.freed.Pages()...)
	txn.done = true
	txn.log.Debug("write transaction committed",
		zap.String("txn", txn.id.String()),
		zap.Int("freed_pages", txn.freed.Len()))
	roots := make(map[string]*btree.RootPointer, len(txn.roots))
	for name, root := range txn.roots {
		roots[name] = root
	}
	return roots, nil
}

// Abort discards every staged page. Pages allocated during the
// transaction return to the pager's free list; committed state is
// untouched. Aborting with tables still open is reported as an error,
// but the staged pages are discarded regardless. Abort after Commit is
// a no-op.
func (txn *WriteTransaction) Abort() error {
	if txn.done {
		return nil
	}
	txn.store.DiscardDirty()
	txn.done = true
	txn.log.Debug("write transaction aborted", zap.String("txn", txn.id.String()))
	if len(txn.open) > 0 {
		return fmt.Errorf("abort with %d tables still open", len(txn.open))
	}
	return nil
}
