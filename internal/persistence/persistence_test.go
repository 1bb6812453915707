package persistence

import (
	"attendees/internal/structures"
	"attendees/internal/testutil"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passthrough leaves data untouched so tests can inspect what was stored.
type passthrough struct {
	closed bool
}

func (p *passthrough) Compress(val []byte) ([]byte, error)   { return val, nil }
func (p *passthrough) Decompress(val []byte) ([]byte, error) { return val, nil }
func (p *passthrough) Close()                                { p.closed = true }

type memorySnapshot struct {
	mu       sync.Mutex
	name     string
	state    []byte
	writeErr error
	writes   int
}

func (m *memorySnapshot) SnapshotName() string { return m.name }

func (m *memorySnapshot) WriteSnapshot(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}
	_, err := w.Write(m.state)
	return err
}

func (m *memorySnapshot) ReadSnapshot(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = data
	return nil
}

func (m *memorySnapshot) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func TestZstdCompression_Roundtrip(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()

	original := bytes.Repeat([]byte("attendee-record;"), 10_000)
	compressed, err := c.Compress(original)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(original)/2)

	decompressed, err := c.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestZstdCompression_RejectsGarbage(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Decompress([]byte("not zstd"))
	assert.Error(t, err)
}

func TestFileBackend_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shard.dat")
	b := NewFileBackend(path)

	require.NoError(t, b.Save("attendees", []byte("v1")))
	require.NoError(t, b.Save("attendees", []byte("v2")))

	data, err := b.Load("attendees")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileBackend_MissingFile(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "absent.dat"))
	data, err := b.Load("attendees")
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestSQLiteBackend_SaveAndLoad(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer b.Close()

	data, err := b.Load("registry")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, b.Save("registry", []byte("first")))
	require.NoError(t, b.Save("registry", []byte("second")))
	require.NoError(t, b.Save("attendees", []byte("other")))

	data, err = b.Load("registry")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	data, err = b.Load("attendees")
	require.NoError(t, err)
	assert.Equal(t, []byte("other"), data)
}

func TestSQLiteBackend_RequiresPath(t *testing.T) {
	_, err := NewSQLiteBackend("  ")
	assert.Error(t, err)
}

func TestNewBackend_Drivers(t *testing.T) {
	dir := t.TempDir()

	b, err := NewBackend(&structures.Config{Persistence: structures.Persistence{FilePath: filepath.Join(dir, "a.dat")}})
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)

	b, err = NewBackend(&structures.Config{Persistence: structures.Persistence{Driver: "sqlite", FilePath: filepath.Join(dir, "a.db")}})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteBackend{}, b)
	require.NoError(t, b.Close())

	_, err = NewBackend(&structures.Config{Persistence: structures.Persistence{Driver: "redis"}})
	assert.Error(t, err)
}

func TestSnapshotManager_RoundTrip(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	backend := NewFileBackend(filepath.Join(t.TempDir(), "shard.dat"))
	metrics := &testutil.MockMetrics{}

	src := &memorySnapshot{name: "attendees", state: []byte("joined entries")}
	require.NoError(t, NewSnapshotManager(src, c, backend, &testutil.MockLogger{}, metrics).Save())
	assert.Equal(t, 1, metrics.PersistCalls)

	dst := &memorySnapshot{name: "attendees"}
	require.NoError(t, NewSnapshotManager(dst, c, backend, &testutil.MockLogger{}, metrics).Load())
	assert.Equal(t, []byte("joined entries"), dst.state)
}

func TestSnapshotManager_LoadEmptyBackend(t *testing.T) {
	logger := &testutil.MockLogger{}
	dst := &memorySnapshot{name: "registry", state: []byte("untouched")}
	m := NewSnapshotManager(dst, &passthrough{}, NewFileBackend(filepath.Join(t.TempDir(), "none.dat")), logger, &testutil.MockMetrics{})

	require.NoError(t, m.Load())
	assert.Equal(t, []byte("untouched"), dst.state)
	assert.Equal(t, 1, logger.Count("info", "No registry snapshot"))
}

func TestSnapshotManager_WriteError(t *testing.T) {
	src := &memorySnapshot{name: "attendees", writeErr: errors.New("boom")}
	m := NewSnapshotManager(src, &passthrough{}, NewFileBackend(filepath.Join(t.TempDir(), "x.dat")), &testutil.MockLogger{}, &testutil.MockMetrics{})
	assert.ErrorContains(t, m.Save(), "boom")
}

func TestSnapshotManager_Close(t *testing.T) {
	comp := &passthrough{}
	m := NewSnapshotManager(&memorySnapshot{}, comp, NewFileBackend(filepath.Join(t.TempDir(), "x.dat")), &testutil.MockLogger{}, &testutil.MockMetrics{})
	m.Close()
	assert.True(t, comp.closed)
}

func schedulerConfig(path string, interval time.Duration) *structures.Config {
	return &structures.Config{
		Persistence: structures.Persistence{FilePath: path, SaveInterval: interval},
	}
}

func TestScheduler_PersistAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.dat")
	conf := schedulerConfig(path, 60)
	backend := NewFileBackend(path)

	src := &memorySnapshot{name: "attendees", state: []byte("state")}
	s := NewScheduler(conf, &testutil.MockLogger{}, NewSnapshotManager(src, &passthrough{}, backend, &testutil.MockLogger{}, &testutil.MockMetrics{}))
	require.NoError(t, s.Persist())

	dst := &memorySnapshot{name: "attendees"}
	r := NewScheduler(conf, &testutil.MockLogger{}, NewSnapshotManager(dst, &passthrough{}, backend, &testutil.MockLogger{}, &testutil.MockMetrics{}))
	require.NoError(t, r.Restore())
	assert.Equal(t, []byte("state"), dst.state)
}

func TestScheduler_PersistError(t *testing.T) {
	logger := &testutil.MockLogger{}
	src := &memorySnapshot{name: "attendees", writeErr: errors.New("disk full")}
	s := NewScheduler(schedulerConfig("x", 60), logger, NewSnapshotManager(src, &passthrough{}, NewFileBackend(filepath.Join(t.TempDir(), "x.dat")), logger, &testutil.MockMetrics{}))

	assert.Error(t, s.Persist())
	assert.Equal(t, 1, logger.Count("error", "Error while persisting data"))
}

func TestScheduler_RestoreCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.dat")
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))
	c, err := NewZstdCompressor()
	require.NoError(t, err)

	s := NewScheduler(schedulerConfig(path, 60), &testutil.MockLogger{}, NewSnapshotManager(&memorySnapshot{name: "attendees"}, c, NewFileBackend(path), &testutil.MockLogger{}, &testutil.MockMetrics{}))
	assert.Error(t, s.Restore())
}

func TestScheduler_PeriodicSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tick.dat")
	src := &memorySnapshot{name: "attendees", state: []byte("tick")}
	s := NewScheduler(schedulerConfig(path, 1), &testutil.MockLogger{}, NewSnapshotManager(src, &passthrough{}, NewFileBackend(path), &testutil.MockLogger{}, &testutil.MockMetrics{}))

	s.Init()
	defer s.Stop()

	assert.Eventually(t, func() bool { return src.Writes() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_StopWithoutInit(t *testing.T) {
	s := NewScheduler(schedulerConfig("x", 1), &testutil.MockLogger{}, nil)
	s.Stop()
}
