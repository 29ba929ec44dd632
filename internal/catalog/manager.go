package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/offerdesk/pricebook/internal/config"
	"github.com/offerdesk/pricebook/internal/embedding"
	"github.com/offerdesk/pricebook/internal/keyword"
	"github.com/offerdesk/pricebook/internal/storage"
	"github.com/offerdesk/pricebook/internal/vector"
)

// Catalog names used as persistence keys.
const (
	CatalogForeign = "foreign_items"
	CatalogLocal   = "local_items"
	CatalogClients = "clients"
)

// ErrUnknownCatalog is returned by Rebuild for a name that is not one of the
// catalog constants.
var ErrUnknownCatalog = errors.New("unknown catalog")

// Manager owns the snapshot lifecycle: building catalogs from source files,
// persisting them, loading them back on startup, and keeping the attribute
// index in sync with the live items.
type Manager struct {
	store  *Store
	db     *storage.SnapshotStore
	attrs  *keyword.AttrIndex
	emb    embedding.Embedder
	cfg    *config.Config
	logger *zap.Logger
}

// NewManager creates a manager over the given store and snapshot database.
func NewManager(cfg *config.Config, store *Store, db *storage.SnapshotStore, attrs *keyword.AttrIndex, emb embedding.Embedder, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		db:     db,
		attrs:  attrs,
		emb:    emb,
		cfg:    cfg,
		logger: logger,
	}
}

// Store returns the snapshot store the manager maintains.
func (m *Manager) Store() *Store {
	return m.store
}

// Initialize loads persisted snapshots, rebuilding from source files where
// none is stored, the stored one does not match the embedder dimensions, or
// forceRebuild is set. A missing source file leaves its slot empty and is not
// fatal; the server can run with whatever catalogs are available.
func (m *Manager) Initialize(ctx context.Context, forceRebuild bool) error {
	for _, name := range []string{CatalogForeign, CatalogLocal} {
		if !forceRebuild {
			if snap, err := m.loadItems(ctx, name); err == nil {
				m.setItems(name, snap)
				m.logger.Info("loaded catalog snapshot",
					zap.String("catalog", name),
					zap.Int("items", len(snap.Items)))
				continue
			} else if !errors.Is(err, storage.ErrSnapshotNotFound) {
				m.logger.Warn("stored snapshot unusable, rebuilding",
					zap.String("catalog", name), zap.Error(err))
			}
		}
		if err := m.rebuildItems(ctx, name); err != nil {
			m.logger.Warn("catalog unavailable",
				zap.String("catalog", name), zap.Error(err))
		}
	}

	if !forceRebuild {
		if snap, err := m.loadClients(ctx); err == nil {
			m.store.SetClients(snap)
			m.logger.Info("loaded client snapshot", zap.Int("clients", len(snap.Clients)))
		} else {
			if !errors.Is(err, storage.ErrSnapshotNotFound) {
				m.logger.Warn("stored client snapshot unusable, rebuilding", zap.Error(err))
			}
			if err := m.rebuildClients(ctx); err != nil {
				m.logger.Warn("client catalog unavailable", zap.Error(err))
			}
		}
	} else if err := m.rebuildClients(ctx); err != nil {
		m.logger.Warn("client catalog unavailable", zap.Error(err))
	}

	return m.refreshAttrs()
}

// RebuildAll rebuilds every catalog from its source file. Catalogs that fail
// keep their previous snapshot; the returned error aggregates all failures.
func (m *Manager) RebuildAll(ctx context.Context) error {
	var errs []error
	for _, name := range []string{CatalogForeign, CatalogLocal} {
		if err := m.rebuildItems(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := m.rebuildClients(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", CatalogClients, err))
	}
	if err := m.refreshAttrs(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Rebuild rebuilds a single catalog by name.
func (m *Manager) Rebuild(ctx context.Context, name string) error {
	switch name {
	case CatalogForeign, CatalogLocal:
		if err := m.rebuildItems(ctx, name); err != nil {
			return err
		}
	case CatalogClients:
		if err := m.rebuildClients(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCatalog, name)
	}
	return m.refreshAttrs()
}

func (m *Manager) rebuildItems(ctx context.Context, name string) error {
	path, isLocal := m.sourceFor(name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("source file not found: %s", path)
	}

	snap, err := BuildCatalog(ctx, path, m.cfg.Catalog.MarkupRate, m.cfg.Catalog.PriceColumn, isLocal, m.emb, m.logger)
	if err != nil {
		return err
	}
	if err := m.persistItems(ctx, name, snap); err != nil {
		return err
	}
	m.setItems(name, snap)
	m.logger.Info("rebuilt catalog",
		zap.String("catalog", name),
		zap.Int("items", len(snap.Items)))
	return nil
}

func (m *Manager) rebuildClients(ctx context.Context) error {
	path := m.cfg.Catalog.ClientsFile
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("source file not found: %s", path)
	}

	snap, err := BuildClients(ctx, path, m.emb)
	if err != nil {
		return err
	}
	if err := m.persistClients(ctx, snap); err != nil {
		return err
	}
	m.store.SetClients(snap)
	m.logger.Info("rebuilt client catalog", zap.Int("clients", len(snap.Clients)))
	return nil
}

func (m *Manager) persistItems(ctx context.Context, name string, snap *Snapshot) error {
	itemsJSON, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("marshal %s items: %w", name, err)
	}
	vectors, err := snap.Index.Bytes()
	if err != nil {
		return fmt.Errorf("serialize %s index: %w", name, err)
	}
	return m.db.SaveSnapshot(ctx, &storage.SnapshotRecord{
		Catalog:   name,
		Items:     itemsJSON,
		Vectors:   vectors,
		ItemCount: len(snap.Items),
		BuiltAt:   snap.BuiltAt,
	})
}

func (m *Manager) persistClients(ctx context.Context, snap *ClientSnapshot) error {
	clientsJSON, err := json.Marshal(snap.Clients)
	if err != nil {
		return fmt.Errorf("marshal clients: %w", err)
	}
	vectors, err := snap.Index.Bytes()
	if err != nil {
		return fmt.Errorf("serialize client index: %w", err)
	}
	return m.db.SaveSnapshot(ctx, &storage.SnapshotRecord{
		Catalog:   CatalogClients,
		Items:     clientsJSON,
		Vectors:   vectors,
		ItemCount: len(snap.Clients),
		BuiltAt:   snap.BuiltAt,
	})
}

func (m *Manager) loadItems(ctx context.Context, name string) (*Snapshot, error) {
	rec, err := m.db.LoadSnapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{BuiltAt: rec.BuiltAt}
	if err := json.Unmarshal(rec.Items, &snap.Items); err != nil {
		return nil, fmt.Errorf("unmarshal %s items: %w", name, err)
	}
	index, err := vector.FromBytes(rec.Vectors)
	if err != nil {
		return nil, fmt.Errorf("deserialize %s index: %w", name, err)
	}
	if err := m.checkIndex(index, len(snap.Items)); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	snap.Index = index
	return snap, nil
}

func (m *Manager) loadClients(ctx context.Context) (*ClientSnapshot, error) {
	rec, err := m.db.LoadSnapshot(ctx, CatalogClients)
	if err != nil {
		return nil, err
	}
	snap := &ClientSnapshot{BuiltAt: rec.BuiltAt}
	if err := json.Unmarshal(rec.Items, &snap.Clients); err != nil {
		return nil, fmt.Errorf("unmarshal clients: %w", err)
	}
	index, err := vector.FromBytes(rec.Vectors)
	if err != nil {
		return nil, fmt.Errorf("deserialize client index: %w", err)
	}
	if err := m.checkIndex(index, len(snap.Clients)); err != nil {
		return nil, fmt.Errorf("clients: %w", err)
	}
	snap.Index = index
	return snap, nil
}

// checkIndex rejects stored indexes that do not line up with the current
// embedder or their item list. Either way the snapshot predates a model or
// source change and must be rebuilt.
func (m *Manager) checkIndex(index *vector.FlatIndex, itemCount int) error {
	if index.Dimensions() != m.emb.Dimensions() {
		return fmt.Errorf("index dimensions %d do not match embedder %d",
			index.Dimensions(), m.emb.Dimensions())
	}
	if index.Size() != itemCount {
		return fmt.Errorf("index has %d vectors for %d items", index.Size(), itemCount)
	}
	return nil
}

func (m *Manager) setItems(name string, snap *Snapshot) {
	if name == CatalogLocal {
		m.store.SetLocal(snap)
		return
	}
	m.store.SetForeign(snap)
}

func (m *Manager) sourceFor(name string) (string, bool) {
	if name == CatalogLocal {
		return m.cfg.Catalog.LocalPriceList, true
	}
	return m.cfg.Catalog.ForeignPriceList, false
}

func (m *Manager) refreshAttrs() error {
	if m.attrs == nil {
		return nil
	}
	if err := m.attrs.Rebuild(m.store.Items()); err != nil {
		return fmt.Errorf("refresh attribute index: %w", err)
	}
	return nil
}

// FilterOptions returns the distinct filter values across the live catalogs.
func (m *Manager) FilterOptions() (map[string][]string, error) {
	if m.attrs == nil {
		return map[string][]string{}, nil
	}
	return m.attrs.FilterOptions()
}

// CatalogStatus describes one live catalog.
type CatalogStatus struct {
	Items   int       `json:"items"`
	BuiltAt time.Time `json:"built_at"`
}

// Status reports the live snapshot sizes and build times per catalog.
func (m *Manager) Status() map[string]CatalogStatus {
	status := make(map[string]CatalogStatus)
	if snap := m.store.Foreign(); snap != nil {
		status[CatalogForeign] = CatalogStatus{Items: len(snap.Items), BuiltAt: snap.BuiltAt}
	}
	if snap := m.store.Local(); snap != nil {
		status[CatalogLocal] = CatalogStatus{Items: len(snap.Items), BuiltAt: snap.BuiltAt}
	}
	if snap := m.store.Clients(); snap != nil {
		status[CatalogClients] = CatalogStatus{Items: len(snap.Clients), BuiltAt: snap.BuiltAt}
	}
	return status
}
