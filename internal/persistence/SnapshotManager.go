package persistence

import (
	"attendees/internal/persistence/interfaces"
	"attendees/internal/providers"
	"attendees/internal/structures"
	"bytes"
	"fmt"
	"time"
)

// SnapshotManager moves a service's state in and out of a backend.
type SnapshotManager struct {
	owner      interfaces.SnapshotterInterface
	compressor interfaces.CompressorInterface
	backend    interfaces.BackendInterface
	logger     providers.Logger
	metrics    providers.MetricsProviderInterface
}

func NewSnapshotManager(owner interfaces.SnapshotterInterface, compressor interfaces.CompressorInterface, backend interfaces.BackendInterface, logger providers.Logger, metrics providers.MetricsProviderInterface) *SnapshotManager {
	return &SnapshotManager{
		owner:      owner,
		compressor: compressor,
		backend:    backend,
		logger:     logger,
		metrics:    metrics,
	}
}

func (m *SnapshotManager) Save() error {
	start := time.Now()
	defer func() { m.metrics.ObservePersistenceDuration(time.Since(start)) }()

	var buf bytes.Buffer
	if err := m.owner.WriteSnapshot(&buf); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	data, err := m.compressor.Compress(buf.Bytes())
	if err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	return m.backend.Save(m.owner.SnapshotName(), data)
}

// Load restores the last saved snapshot. Nothing saved yet is not an error.
func (m *SnapshotManager) Load() error {
	name := m.owner.SnapshotName()
	data, err := m.backend.Load(name)
	if err != nil {
		return err
	}
	if data == nil {
		m.logger.Infof(providers.TypeApp, "No %s snapshot found, starting empty", name)
		return nil
	}

	raw, err := m.compressor.Decompress(data)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}
	return m.owner.ReadSnapshot(bytes.NewReader(raw))
}

func (m *SnapshotManager) Close() {
	m.compressor.Close()
	if err := m.backend.Close(); err != nil {
		m.logger.Warnf(providers.TypeApp, "Error while closing persistence backend: %s", err)
	}
}

// NewBackend picks the storage driver configured for the unit.
func NewBackend(conf *structures.Config) (interfaces.BackendInterface, error) {
	switch conf.Persistence.Driver {
	case "", "file":
		return NewFileBackend(conf.Persistence.FilePath), nil
	case "sqlite":
		return NewSQLiteBackend(conf.Persistence.FilePath)
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", conf.Persistence.Driver)
	}
}
