package interfaces

import "io"

type SchedulerInterface interface {
	Init()
	Stop()
	Restore() error
	Persist() error
}

type CompressorInterface interface {
	Compress(val []byte) ([]byte, error)
	Decompress(val []byte) ([]byte, error)
	Close()
}

// SnapshotterInterface is implemented by the service owning a unit's state.
type SnapshotterInterface interface {
	SnapshotName() string
	WriteSnapshot(w io.Writer) error
	ReadSnapshot(r io.Reader) error
}

// BackendInterface stores compressed snapshots by name. Load returns nil
// data and no error when nothing was saved yet.
type BackendInterface interface {
	Save(name string, data []byte) error
	Load(name string) ([]byte, error)
	Close() error
}
