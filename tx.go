package triplit

import (
	"context"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/filter"
	"github.com/itoxiq/triplit/internal/proxy"
)

// Tx is a transactional handle passed to a Transact callback. Its
// methods mirror DB's read/write operations. Transact's scope names are
// accepted and ignored: this implementation has a single storage scope,
// and the parameter only preserves call-site compatibility with callers
// written against a multi-scope `transact(cb, { read, write })` contract.
type Tx struct {
	db  *DB
	ctx context.Context
}

// Insert behaves like DB.Insert, scoped to this transaction.
func (tx *Tx) Insert(collection string, doc map[string]any, id ...string) (clock.Timestamp, error) {
	return tx.db.Insert(tx.ctx, collection, doc, id...)
}

// Update behaves like DB.Update, scoped to this transaction.
func (tx *Tx) Update(collection, id string, mutate func(*proxy.Entity) error) error {
	return tx.db.Update(tx.ctx, collection, id, mutate)
}

// Fetch behaves like DB.Fetch, scoped to this transaction.
func (tx *Tx) Fetch(query filter.Query) ([]map[string]any, error) {
	return tx.db.Fetch(tx.ctx, query)
}

// FetchByID behaves like DB.FetchByID, scoped to this transaction.
func (tx *Tx) FetchByID(collection, id string) (map[string]any, error) {
	return tx.db.FetchByID(tx.ctx, collection, id)
}

// Transact runs fn against a transactional handle over db. Every
// operation inside fn still commits through triplestore.Store.PutAll as
// it's called, so atomicity is per-call rather than spanning the whole
// callback; see DESIGN.md for the embeddable, single-process scope that
// makes this an acceptable simplification of spec.md's cb-scoped
// transaction model. On error, fn's partial writes are not rolled back.
func (db *DB) Transact(ctx context.Context, fn func(*Tx) error, scope ...string) error {
	return fn(&Tx{db: db, ctx: ctx})
}
