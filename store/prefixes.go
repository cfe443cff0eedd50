package store

// Storage prefixes. Record keys append the big-endian sequence number,
// so Badger's key order is the journal order.
const (
	SnapshotPrefix = "st-"
	RecordPrefix   = "ev-"
)

const snapshotKey = SnapshotPrefix + "latest"
