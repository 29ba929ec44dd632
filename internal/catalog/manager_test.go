package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/offerdesk/pricebook/internal/config"
	"github.com/offerdesk/pricebook/internal/embedding"
	"github.com/offerdesk/pricebook/internal/keyword"
	"github.com/offerdesk/pricebook/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "pricebook.db")
	cfg.Catalog.ForeignPriceList = filepath.Join(dir, "price_list.xlsx")
	cfg.Catalog.LocalPriceList = filepath.Join(dir, "local_items.xlsx")
	cfg.Catalog.ClientsFile = filepath.Join(dir, "clients.csv")
	return cfg
}

func writeManagerFixtures(t *testing.T, cfg *config.Config) {
	t.Helper()

	foreign := writePriceList(t,
		[]interface{}{"description", "po_price", "make"},
		[]interface{}{"Electric fire pump 500 GPM", 1000, "NAFFCO"},
		[]interface{}{"Smoke detector addressable", 45, "Apollo"},
	)
	if err := os.Rename(foreign, cfg.Catalog.ForeignPriceList); err != nil {
		t.Fatal(err)
	}

	local := writePriceList(t,
		[]interface{}{"description", "po_price"},
		[]interface{}{"Pipe bracket local supply", 3.5},
	)
	if err := os.Rename(local, cfg.Catalog.LocalPriceList); err != nil {
		t.Fatal(err)
	}

	clients := "client_name,client_address\nGulf Contracting,Doha\n"
	if err := os.WriteFile(cfg.Catalog.ClientsFile, []byte(clients), 0600); err != nil {
		t.Fatal(err)
	}
}

func newTestManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	db, err := storage.NewSnapshotStore(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	attrs, err := keyword.NewAttrIndex()
	if err != nil {
		t.Fatalf("NewAttrIndex: %v", err)
	}
	t.Cleanup(func() { _ = attrs.Close() })

	emb := embedding.NewMockEmbedder(8)
	return NewManager(cfg, NewStore(), db, attrs, emb, zap.NewNop())
}

func TestManager_InitializeBuildsAndReloads(t *testing.T) {
	cfg := testConfig(t)
	writeManagerFixtures(t, cfg)
	ctx := context.Background()

	m1 := newTestManager(t, cfg)
	if err := m1.Initialize(ctx, true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	foreign := m1.Store().Foreign()
	if foreign == nil || len(foreign.Items) != 2 {
		t.Fatalf("foreign snapshot: %+v", foreign)
	}
	local := m1.Store().Local()
	if local == nil || len(local.Items) != 1 {
		t.Fatalf("local snapshot: %+v", local)
	}
	clients := m1.Store().Clients()
	if clients == nil || len(clients.Clients) != 1 {
		t.Fatalf("client snapshot: %+v", clients)
	}

	// Second manager over the same database must load without source access.
	if err := os.Remove(cfg.Catalog.ForeignPriceList); err != nil {
		t.Fatal(err)
	}
	m2 := newTestManager(t, cfg)
	if err := m2.Initialize(ctx, false); err != nil {
		t.Fatalf("Initialize from snapshots: %v", err)
	}

	reloaded := m2.Store().Foreign()
	if reloaded == nil || len(reloaded.Items) != 2 {
		t.Fatalf("reloaded foreign snapshot: %+v", reloaded)
	}
	for i := range foreign.Items {
		if reloaded.Items[i].ItemCode != foreign.Items[i].ItemCode {
			t.Errorf("item %d changed across reload: %q vs %q",
				i, reloaded.Items[i].ItemCode, foreign.Items[i].ItemCode)
		}
	}

	// The reloaded index must rank the same rows for the same probe.
	emb := embedding.NewMockEmbedder(8)
	probe, err := emb.Embed(ctx, "electric fire pump 500 gpm")
	if err != nil {
		t.Fatal(err)
	}
	before, err := foreign.Index.Search(probe, 1)
	if err != nil {
		t.Fatal(err)
	}
	after, err := reloaded.Index.Search(probe, 1)
	if err != nil {
		t.Fatal(err)
	}
	if before[0].Row != after[0].Row {
		t.Errorf("nearest row changed across reload: %d vs %d", before[0].Row, after[0].Row)
	}
}

func TestManager_RebuildSingleCatalog(t *testing.T) {
	cfg := testConfig(t)
	writeManagerFixtures(t, cfg)
	ctx := context.Background()

	m := newTestManager(t, cfg)
	if err := m.Initialize(ctx, true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// Grow the local source and rebuild just that catalog.
	local := writePriceList(t,
		[]interface{}{"description", "po_price"},
		[]interface{}{"Pipe bracket local supply", 3.5},
		[]interface{}{"Threaded rod galvanized", 1.2},
	)
	if err := os.Remove(cfg.Catalog.LocalPriceList); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(local, cfg.Catalog.LocalPriceList); err != nil {
		t.Fatal(err)
	}

	if err := m.Rebuild(ctx, CatalogLocal); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if snap := m.Store().Local(); snap == nil || len(snap.Items) != 2 {
		t.Fatalf("local snapshot after rebuild: %+v", snap)
	}
	// The foreign snapshot is untouched.
	if snap := m.Store().Foreign(); snap == nil || len(snap.Items) != 2 {
		t.Fatalf("foreign snapshot after rebuild: %+v", snap)
	}

	if err := m.Rebuild(ctx, "nonsense"); !errors.Is(err, ErrUnknownCatalog) {
		t.Errorf("Rebuild(nonsense) = %v, want ErrUnknownCatalog", err)
	}
}

func TestManager_MissingSourcesNotFatal(t *testing.T) {
	cfg := testConfig(t)
	// No source files at all.
	m := newTestManager(t, cfg)
	if err := m.Initialize(context.Background(), false); err != nil {
		t.Fatalf("Initialize should tolerate missing sources: %v", err)
	}
	if m.Store().Foreign() != nil || m.Store().Local() != nil || m.Store().Clients() != nil {
		t.Error("snapshots should be empty when sources are missing")
	}
}

func TestManager_FilterOptions(t *testing.T) {
	cfg := testConfig(t)
	writeManagerFixtures(t, cfg)

	m := newTestManager(t, cfg)
	if err := m.Initialize(context.Background(), true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	options, err := m.FilterOptions()
	if err != nil {
		t.Fatalf("FilterOptions: %v", err)
	}
	makes := options["make"]
	if len(makes) != 2 || makes[0] != "Apollo" || makes[1] != "NAFFCO" {
		t.Errorf("make options: %v", makes)
	}
	if len(options["product_type"]) == 0 {
		t.Errorf("product_type options: %v", options["product_type"])
	}
}

func TestManager_Status(t *testing.T) {
	cfg := testConfig(t)
	writeManagerFixtures(t, cfg)

	m := newTestManager(t, cfg)
	if err := m.Initialize(context.Background(), true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	status := m.Status()
	if status[CatalogForeign].Items != 2 {
		t.Errorf("foreign status: %+v", status[CatalogForeign])
	}
	if status[CatalogLocal].Items != 1 {
		t.Errorf("local status: %+v", status[CatalogLocal])
	}
	if status[CatalogClients].Items != 1 {
		t.Errorf("clients status: %+v", status[CatalogClients])
	}
	if status[CatalogForeign].BuiltAt.IsZero() {
		t.Error("built_at should be set")
	}
}

func TestStore_SheetNames(t *testing.T) {
	cfg := testConfig(t)
	writeManagerFixtures(t, cfg)

	m := newTestManager(t, cfg)
	if err := m.Initialize(context.Background(), true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	names := m.Store().SheetNames()
	if len(names) != 1 || names[0] != "Pumps" {
		t.Errorf("sheet names: %v", names)
	}
}
