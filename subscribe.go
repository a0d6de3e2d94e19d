package triplit

import (
	"context"
	"log/slog"

	"github.com/itoxiq/triplit/internal/filter"
)

// subscription is one live query: Subscribe registers it, notify
// re-evaluates it whenever its collection changes.
type subscription struct {
	query    filter.Query
	onResult func([]map[string]any)
	onError  func(error)
	vars     map[string]any
}

// Subscribe computes query's initial result,
// delivers it to onResult, then re-runs the query (and re-delivers)
// every time its collection is mutated, until the returned unsubscribe
// func is called. Cancellation is cooperative and idempotent.
func (db *DB) Subscribe(ctx context.Context, query filter.Query, onResult func([]map[string]any), onError func(error)) (unsubscribe func(), err error) {
	vars := db.variablesSnapshot()
	initial, err := db.fetch(ctx, query, vars)
	if err != nil {
		return nil, err
	}

	db.subsMu.Lock()
	id := db.nextSubID
	db.nextSubID++
	db.subs[id] = &subscription{query: query, onResult: onResult, onError: onError, vars: vars}
	db.subsMu.Unlock()

	onResult(initial)

	return func() {
		db.subsMu.Lock()
		defer db.subsMu.Unlock()
		delete(db.subs, id)
	}, nil
}

// notify re-runs every live subscription whose query targets collection,
// delivering fresh results or the evaluation error.
func (db *DB) notify(ctx context.Context, collection string) {
	db.subsMu.Lock()
	targets := make([]*subscription, 0, len(db.subs))
	for _, sub := range db.subs {
		if sub.query.Collection == collection {
			targets = append(targets, sub)
		}
	}
	db.subsMu.Unlock()

	for _, sub := range targets {
		results, err := db.fetch(ctx, sub.query, sub.vars)
		if err != nil {
			slog.Error("triplit: subscription re-evaluation failed", "collection", collection, "error", err)
			if sub.onError != nil {
				sub.onError(err)
			}
			continue
		}
		sub.onResult(results)
	}
}
