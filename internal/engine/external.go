package engine

import "io"

// SeekOrigin mirrors StreamReader's seek origins.
type SeekOrigin int

const (
	SeekStart SeekOrigin = iota
	SeekCurrent
	SeekEnd
)

// StreamReader is an externally-supplied seekable byte stream over one
// asset's encoded audio (§6). Seek follows SeekOrigin semantics; Tell and
// StreamLength report absolute position/size in bytes.
type StreamReader interface {
	io.Reader
	Seek(offset int64, origin SeekOrigin) (int64, error)
	Tell() (int64, error)
	StreamLength() (int64, error)
	Close() error
}

// AssetBackend resolves an opaque asset handle to bytes; it is the core's
// only door into the host's asset system (scene/entity storage, the asset
// manager, and asset-pack I/O are all out of scope per §1).
type AssetBackend interface {
	CreateReader(assetHandle uint64) (StreamReader, error)
	FileSize(assetHandle uint64) (uint64, error)
}

// TransformProvider supplies ObjectId -> Transform/velocity snapshots each
// scene tick; the core only needs this lookup, never the scene graph
// itself (§9: "shared-pointer to Scene becomes a weak back-reference").
type TransformProvider interface {
	Snapshot() map[ObjectId]ObjectState
}
