package search

import (
	"context"
	"testing"

	"github.com/offerdesk/pricebook/internal/catalog"
	"github.com/offerdesk/pricebook/internal/config"
	"github.com/offerdesk/pricebook/internal/embedding"
	"github.com/offerdesk/pricebook/internal/models"
	"github.com/offerdesk/pricebook/internal/vector"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	store := catalog.NewStore()
	store.SetForeign(&catalog.Snapshot{Items: []models.CatalogItem{
		{ItemCode: "F1", SearchText: "electric fire pump 500 gpm", Make: "NAFFCO", ProductType: "Pumps"},
		{ItemCode: "F2", SearchText: "diesel fire pump 750 gpm", Make: "NAFFCO", ProductType: "Pumps"},
		{ItemCode: "F3", SearchText: "addressable smoke detector", Make: "Apollo", ProductType: "Detection"},
	}})
	store.SetLocal(&catalog.Snapshot{Items: []models.CatalogItem{
		{ItemCode: "L1", SearchText: "electric fire pump 500 gpm", ProductType: "Pumps"},
		{ItemCode: "L2", SearchText: "pipe bracket", ProductType: "Fittings"},
	}})

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return NewEngine(cfg, store, embedding.NewMockEmbedder(8))
}

func TestSearchItems_Scoring(t *testing.T) {
	e := newTestEngine(t)

	results := e.SearchItems(models.ItemQuery{Query: "fire pump -diesel", Role: models.RoleAdmin})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Both remaining pumps match both terms and the phrase: 2/2 + 0.5.
	if results[0].Score != 1.5 || results[1].Score != 1.5 {
		t.Errorf("scores: %v, %v", results[0].Score, results[1].Score)
	}
	// Foreign wins the tie.
	if results[0].ItemCode != "F1" || results[1].ItemCode != "L1" {
		t.Errorf("order: %s, %s", results[0].ItemCode, results[1].ItemCode)
	}
}

func TestSearchItems_PartialMatchRanksLower(t *testing.T) {
	e := newTestEngine(t)

	results := e.SearchItems(models.ItemQuery{Query: "diesel pump", Role: models.RoleAdmin})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ItemCode != "F2" {
		t.Errorf("full match should rank first, got %s", results[0].ItemCode)
	}
	// F2 matches both terms but not the phrase: 2/2 with no bonus.
	if results[0].Score != 1.0 {
		t.Errorf("full match score: %v", results[0].Score)
	}
	// Partial matches contain only "pump": 1/2.
	if results[1].Score != 0.5 || results[2].Score != 0.5 {
		t.Errorf("partial scores: %v, %v", results[1].Score, results[2].Score)
	}
}

func TestSearchItems_EmptyQueryReturnsFiltered(t *testing.T) {
	e := newTestEngine(t)

	results := e.SearchItems(models.ItemQuery{
		Filters: models.ItemFilters{ProductType: []string{"pumps"}},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 pump items, got %d", len(results))
	}
	for _, r := range results {
		if r.Score != 0 {
			t.Errorf("unranked results should carry no score: %+v", r)
		}
	}
}

func TestSearchItems_NegativeOnlyQueryReturnsFiltered(t *testing.T) {
	e := newTestEngine(t)

	results := e.SearchItems(models.ItemQuery{Query: "-diesel"})
	if len(results) != 5 {
		t.Fatalf("negative-only query should return all items unranked, got %d", len(results))
	}
}

func TestSearchItems_FiltersAreANDed(t *testing.T) {
	e := newTestEngine(t)

	results := e.SearchItems(models.ItemQuery{
		Query: "fire",
		Filters: models.ItemFilters{
			Make:        []string{"naffco"},
			ProductType: []string{"Pumps"},
		},
		Role: models.RoleAdmin,
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Make != "NAFFCO" {
			t.Errorf("filter leak: %+v", r)
		}
	}
}

func TestSearchItems_SourceSelection(t *testing.T) {
	e := newTestEngine(t)

	local := e.SearchItems(models.ItemQuery{Query: "pump", Source: "local"})
	for _, r := range local {
		if r.Source != models.SourceLocal {
			t.Errorf("expected only local items: %+v", r)
		}
	}

	foreign := e.SearchItems(models.ItemQuery{Query: "pump", Source: "foreign"})
	for _, r := range foreign {
		if r.Source != models.SourceForeign {
			t.Errorf("expected only foreign items: %+v", r)
		}
	}
}

func TestSearchItems_RoleStripsRankingFields(t *testing.T) {
	e := newTestEngine(t)

	results := e.SearchItems(models.ItemQuery{Query: "fire pump"})
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	for _, r := range results {
		if r.Score != 0 || r.SourceRank != 0 {
			t.Errorf("ranking fields should be stripped for non-admin: %+v", r)
		}
	}
}

func TestSearchItems_Limit(t *testing.T) {
	e := newTestEngine(t)

	results := e.SearchItems(models.ItemQuery{Query: "pump", Limit: 1})
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestSearchItems_NoMatches(t *testing.T) {
	e := newTestEngine(t)

	results := e.SearchItems(models.ItemQuery{Query: "xylophone"})
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", results)
	}
}

func TestSearchClients(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	ctx := context.Background()

	clients := []models.ClientRecord{
		{Name: "Gulf Contracting", SearchText: "gulf contracting doha"},
		{Name: "Al Reef Trading", SearchText: "al reef trading muscat"},
	}
	index, err := vector.NewFlatIndex(8)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range clients {
		vec, err := emb.Embed(ctx, c.SearchText)
		if err != nil {
			t.Fatal(err)
		}
		if err := index.Append([][]float32{vec}); err != nil {
			t.Fatal(err)
		}
	}

	store := catalog.NewStore()
	store.SetClients(&catalog.ClientSnapshot{Clients: clients, Index: index})

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	e := NewEngine(cfg, store, emb)

	results, err := e.SearchClients(ctx, "Gulf Contracting Doha")
	if err != nil {
		t.Fatalf("SearchClients: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "Gulf Contracting" {
		t.Errorf("nearest client: %q", results[0].Name)
	}

	empty, err := e.SearchClients(ctx, "  ")
	if err != nil {
		t.Fatalf("SearchClients empty: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty query should return no results, got %v", empty)
	}
}
