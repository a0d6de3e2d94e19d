// Package triplit implements a client-side, embeddable, schema-aware
// document database over an EAV triple store with CRDT set semantics and
// reactive query subscriptions.
//
// DB is the single entry point: construct one with New, then read and
// write through Insert/Update/Fetch/FetchByID/Subscribe, and evolve its
// schema through CreateCollection/AddAttribute/... or Migrate.
package triplit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/codec"
	"github.com/itoxiq/triplit/internal/filter"
	"github.com/itoxiq/triplit/internal/kvstore"
	"github.com/itoxiq/triplit/internal/migrate"
	"github.com/itoxiq/triplit/internal/persistence"
	"github.com/itoxiq/triplit/internal/proxy"
	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/terrors"
	"github.com/itoxiq/triplit/internal/triple"
	"github.com/itoxiq/triplit/internal/triplestore"
)

// DB is one triplit database: a triple store plus its schema, clock,
// and process-wide variables scope.
type DB struct {
	kv         *kvstore.Store
	store      *triplestore.Store
	clock      *clock.Clock
	migrations *migrate.Executor
	backups    *persistence.BackupManager

	varsMu    sync.RWMutex
	variables map[string]any

	subsMu    sync.Mutex
	subs      map[uint64]*subscription
	nextSubID uint64
}

// New builds a DB. With no options it is schemaless (dynamic): every
// collection accepts any document shape. WithSchema and WithMigrations
// are mutually exclusive ways of seeding a starting schema.
func New(opts ...Option) (*DB, error) {
	c, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	var kvOpts []kvstore.Option
	if c.walPath != "" {
		kvOpts = append(kvOpts, kvstore.WithWAL(c.walPath))
	}
	kv, err := kvstore.New(kvOpts...)
	if err != nil {
		return nil, fmt.Errorf("triplit: opening kv store: %w", err)
	}

	store := triplestore.New(kv)
	clk := clock.New(c.clientID)

	variables := make(map[string]any, len(c.variables))
	for k, v := range c.variables {
		variables[k] = v
	}

	db := &DB{
		kv:         kv,
		store:      store,
		clock:      clk,
		migrations: migrate.New(store, clk),
		variables:  variables,
		subs:       make(map[uint64]*subscription),
	}

	ctx := context.Background()
	switch {
	case c.schema != nil:
		if err := db.OverrideSchema(ctx, c.schema); err != nil {
			return nil, err
		}
	case len(c.migrations) > 0:
		if err := db.Migrate(ctx, c.migrations, migrate.Up); err != nil {
			return nil, err
		}
	}

	if c.backupInterval > 0 {
		db.backups = persistence.NewBackupManager(kv, c.backupInterval, c.backupRetention)
		db.backups.Start()
	}

	slog.Info("triplit: database opened", "clientId", clk.ClientID())
	return db, nil
}

// Close releases the underlying storage (its WAL file, if any) and stops
// any background backup manager.
func (db *DB) Close() error {
	if db.backups != nil {
		db.backups.Stop()
	}
	return db.kv.Close()
}

// Backup takes an immediate on-demand snapshot backup, independent of
// any periodic schedule configured via WithPeriodicBackups.
func (db *DB) Backup(ctx context.Context) error {
	bm := db.backups
	if bm == nil {
		bm = persistence.NewBackupManager(db.kv, 0, 0)
	}
	return bm.PerformBackup()
}

// Restore replaces the DB's entire contents with the snapshot recorded
// under the given backup name. Destructive: all current data is
// discarded first.
func (db *DB) Restore(ctx context.Context, name string) error {
	return persistence.PerformRestore(name, db.kv)
}

func (db *DB) currentSchema(ctx context.Context) (*schema.Schema, error) {
	return db.migrations.LoadSchema(ctx)
}

// Schema returns the DB's current `_schema` document.
func (db *DB) Schema(ctx context.Context) (*schema.Schema, error) {
	return db.currentSchema(ctx)
}

func (db *DB) collectionAttrs(ctx context.Context, collection string) (schema.AttributeMap, *schema.CollectionDef, error) {
	s, err := db.currentSchema(ctx)
	if err != nil {
		return nil, nil, err
	}
	def, ok := s.Collections[collection]
	if !ok {
		return nil, nil, nil
	}
	return def.Schema, &def, nil
}

func (db *DB) variablesSnapshot() map[string]any {
	db.varsMu.RLock()
	defer db.varsMu.RUnlock()
	out := make(map[string]any, len(db.variables))
	for k, v := range db.variables {
		out[k] = v
	}
	return out
}

// UpdateVariables merges updates into the DB's process-wide variables
// scope. Already-open subscriptions keep the snapshot they started
// with; only subsequent queries see the new values.
func (db *DB) UpdateVariables(updates map[string]any) {
	db.varsMu.Lock()
	defer db.varsMu.Unlock()
	for k, v := range updates {
		db.variables[k] = v
	}
}

func validateExternalID(id string) error {
	if strings.ContainsRune(id, '#') {
		return terrors.New(terrors.InvalidEntityId, fmt.Sprintf("entity id %q must not contain '#'", id))
	}
	return nil
}

// Insert creates a new entity in collection, generating an id if none is
// given. It returns the commit timestamp the entity's triples were
// written at.
func (db *DB) Insert(ctx context.Context, collection string, doc map[string]any, id ...string) (clock.Timestamp, error) {
	externalID := ""
	if len(id) > 0 {
		externalID = id[0]
	}
	if externalID == "" {
		externalID = uuid.NewString()
	}
	if err := validateExternalID(externalID); err != nil {
		return clock.Timestamp{}, err
	}

	attrs, def, err := db.collectionAttrs(ctx, collection)
	if err != nil {
		return clock.Timestamp{}, err
	}
	doc = withDefaults(doc, attrs)

	if def != nil && def.Rules != nil {
		if rule, ok := def.Rules["insert"]; ok {
			pass, err := evaluateWriteRule(rule, doc, db.variablesSnapshot())
			if err != nil {
				return clock.Timestamp{}, err
			}
			if !pass {
				return clock.Timestamp{}, terrors.New(terrors.WriteRuleViolation,
					fmt.Sprintf("insert into %s rejected by write rule", collection))
			}
		}
	}

	ts := db.clock.Next()
	triples, err := codec.PlainToTriples(collection, externalID, doc, ts, attrs)
	if err != nil {
		return clock.Timestamp{}, err
	}
	if err := db.store.PutAll(ctx, triples); err != nil {
		return clock.Timestamp{}, err
	}

	slog.Debug("triplit: inserted entity", "collection", collection, "id", externalID)
	db.notify(ctx, collection)
	return ts, nil
}

// Update fetches the entity at (collection, id), lets mutate stage
// changes against it through a proxy.Entity, validates and re-evaluates
// the collection's write rules, and commits the result at a single
// timestamp.
func (db *DB) Update(ctx context.Context, collection, id string, mutate func(*proxy.Entity) error) error {
	e := triple.EntityID{Collection: collection, ID: id}
	exists, err := db.store.Exists(ctx, e)
	if err != nil {
		return err
	}
	if !exists {
		return terrors.New(terrors.EntityNotFound, fmt.Sprintf("%s#%s not found", collection, id))
	}

	current, err := db.store.Current(ctx, e)
	if err != nil {
		return err
	}
	attrs, def, err := db.collectionAttrs(ctx, collection)
	if err != nil {
		return err
	}

	obj := codec.TriplesToObject(current, collection)
	entity := proxy.New(e, attrs, obj)
	if err := mutate(entity); err != nil {
		return err
	}
	if !entity.HasStagedChanges() {
		return nil
	}
	if err := entity.ValidateAgainstSchema(); err != nil {
		return err
	}

	if def != nil && def.Rules != nil {
		if rule, ok := def.Rules["update"]; ok {
			post := entity.ToPlain()
			pass, err := evaluateWriteRule(rule, post, db.variablesSnapshot())
			if err != nil {
				return err
			}
			if !pass {
				return terrors.New(terrors.WriteRuleViolation,
					fmt.Sprintf("update of %s#%s rejected by write rule", collection, id))
			}
		}
	}

	ts := db.clock.Next()
	triples := entity.Commit(ts)
	// The proxy works in collection-relative paths; stored paths carry the
	// collection name as their first segment.
	for i := range triples {
		triples[i].A = append(triple.Path{collection}, triples[i].A...)
	}
	if err := db.store.PutAll(ctx, triples); err != nil {
		return err
	}

	slog.Debug("triplit: updated entity", "collection", collection, "id", id)
	db.notify(ctx, collection)
	return nil
}

// Delete tombstones every current triple of the entity at (collection,
// id).
func (db *DB) Delete(ctx context.Context, collection, id string) error {
	e := triple.EntityID{Collection: collection, ID: id}
	ts := db.clock.Next()
	if err := db.store.Tombstone(ctx, e, ts); err != nil {
		return err
	}
	db.notify(ctx, collection)
	return nil
}

// FetchByID returns the plain document for (collection, id), or
// EntityNotFound if it doesn't exist (or has been deleted).
func (db *DB) FetchByID(ctx context.Context, collection, id string) (map[string]any, error) {
	e := triple.EntityID{Collection: collection, ID: id}
	exists, err := db.store.Exists(ctx, e)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, terrors.New(terrors.EntityNotFound, fmt.Sprintf("%s#%s not found", collection, id))
	}
	current, err := db.store.Current(ctx, e)
	if err != nil {
		return nil, err
	}
	attrs, _, err := db.collectionAttrs(ctx, collection)
	if err != nil {
		return nil, err
	}
	doc := codec.ObjectToPlain(codec.TriplesToObject(current, collection), attrs)
	doc["id"] = id
	return doc, nil
}

// Fetch evaluates query against every current entity in its collection,
// returning the matching documents ordered, sliced, and deduplicated per
// the query's OrderBy/Limit/Offset/Distinct.
func (db *DB) Fetch(ctx context.Context, query filter.Query) ([]map[string]any, error) {
	return db.fetch(ctx, query, db.variablesSnapshot())
}

func (db *DB) fetch(ctx context.Context, query filter.Query, vars map[string]any) ([]map[string]any, error) {
	attrs, _, err := db.collectionAttrs(ctx, query.Collection)
	if err != nil {
		return nil, err
	}
	entities, err := db.store.CollectionEntities(ctx, query.Collection)
	if err != nil {
		return nil, err
	}

	var docs []map[string]any
	for _, e := range entities {
		current, err := db.store.Current(ctx, e)
		if err != nil {
			return nil, err
		}
		obj := codec.TriplesToObject(current, query.Collection)
		ok, err := filter.Evaluate(query.Where, obj, vars)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		doc := codec.ObjectToPlain(obj, attrs)
		doc["id"] = e.ID
		docs = append(docs, doc)
	}

	sortDocs(docs, query.OrderBy)
	if query.Distinct {
		docs = distinctDocs(docs)
	}
	return paginate(docs, query.Offset, query.Limit), nil
}

func sortDocs(docs []map[string]any, order []filter.OrderTerm) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, term := range order {
			a := pathValue(docs[i], term.Path)
			b := pathValue(docs[j], term.Path)
			c := compareAny(a, b)
			if c == 0 {
				continue
			}
			if term.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func pathValue(doc map[string]any, path triple.Path) any {
	var cur any = doc
	for _, seg := range path {
		name, ok := seg.(string)
		if !ok {
			return nil
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[name]
	}
	return cur
}

func compareAny(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func distinctDocs(docs []map[string]any) []map[string]any {
	seen := make(map[string]struct{}, len(docs))
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		key := fmt.Sprintf("%v", d)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}

func paginate(docs []map[string]any, offset, limit int) []map[string]any {
	if offset > 0 {
		if offset >= len(docs) {
			return nil
		}
		docs = docs[offset:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}
