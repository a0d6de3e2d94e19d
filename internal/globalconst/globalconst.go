// Package globalconst centralizes the small set of magic strings the
// rest of triplit shares, to avoid typo drift between packages.
package globalconst

const (
	// IDField is the reserved field holding an entity's external id in
	// every document FetchByID/Fetch returns.
	IDField = "id"

	// SchemaCollection is the reserved collection name the `_schema`
	// document lives under in the triple store.
	SchemaCollection = "_schema"
	// SchemaEntityID is the reserved entity id of the single `_schema`
	// document within SchemaCollection.
	SchemaEntityID = "_schema"

	// CollectionMarkerAttribute is the reserved attribute path every
	// entity carries to record which collection it belongs to.
	CollectionMarkerAttribute = "_collection"

	// BackupsDirName is the root directory new backups are written under.
	BackupsDirName = "backups"
	// SnapshotFileName is the file name of a backup's serialized snapshot.
	SnapshotFileName = "snapshot.ttdb"
)
