package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/offerdesk/pricebook/internal/catalog"
	"github.com/offerdesk/pricebook/internal/config"
	"github.com/offerdesk/pricebook/internal/embedding"
	"github.com/offerdesk/pricebook/internal/models"
	"github.com/offerdesk/pricebook/internal/vector"
)

func buildSnapshot(t *testing.T, emb *embedding.MockEmbedder, items []models.CatalogItem) *catalog.Snapshot {
	t.Helper()
	index, err := vector.NewFlatIndex(emb.Dimensions())
	if err != nil {
		t.Fatal(err)
	}
	for _, item := range items {
		vec, err := emb.Embed(context.Background(), item.SearchText)
		if err != nil {
			t.Fatal(err)
		}
		if err := index.Append([][]float32{vec}); err != nil {
			t.Fatal(err)
		}
	}
	return &catalog.Snapshot{Items: items, Index: index}
}

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	emb := embedding.NewMockEmbedder(8)

	store := catalog.NewStore()
	store.SetForeign(buildSnapshot(t, emb, []models.CatalogItem{
		{ItemCode: "F1", SearchText: "electric fire pump 500 gpm"},
		{ItemCode: "F2", SearchText: "addressable smoke detector"},
	}))
	store.SetLocal(buildSnapshot(t, emb, []models.CatalogItem{
		{ItemCode: "L1", SearchText: "pipe bracket local supply"},
	}))

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return NewMatcher(cfg, store, emb, zap.NewNop())
}

const uploadCSV = "Project fire fighting works\n" +
	"SL,Item Description,Qty,Unit,Rate\n" +
	"1,electric fire pump 500 gpm,2,Set,1000\n" +
	"2,addressable smoke detector,10,Pcs,45\n" +
	",,,,\n" +
	"Grand Total,,,,2090\n" +
	"Authorized Signature,,,,\n"

func TestMatchUpload(t *testing.T) {
	m := newTestMatcher(t)

	result, err := m.MatchUpload(context.Background(), strings.NewReader(uploadCSV), "boq.csv", true, true)
	if err != nil {
		t.Fatalf("MatchUpload: %v", err)
	}

	if result.UploadID == "" {
		t.Error("upload id should be set")
	}
	if result.Degraded {
		t.Error("structured upload should not be degraded")
	}
	if result.DescriptionCol != 1 {
		t.Errorf("description column: %d", result.DescriptionCol)
	}
	if result.QuantityCol != 2 || result.UnitCol != 3 || result.UnitPriceCol != 4 {
		t.Errorf("columns: qty=%d unit=%d price=%d", result.QuantityCol, result.UnitCol, result.UnitPriceCol)
	}

	// Footer rows are trimmed: only the two item rows survive.
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}

	first := result.Rows[0]
	if !first.HasMatch {
		t.Error("identical description should match")
	}
	if len(first.Suggestions) == 0 || first.Suggestions[0].ItemCode != "F1" {
		t.Errorf("suggestions: %+v", first.Suggestions)
	}
	if first.Suggestions[0].Distance != 0 {
		t.Errorf("identical text should have zero distance: %v", first.Suggestions[0].Distance)
	}
	if first.Cells[1] != "electric fire pump 500 gpm" {
		t.Errorf("cells: %v", first.Cells)
	}
}

func TestMatchUpload_LocalOnly(t *testing.T) {
	m := newTestMatcher(t)

	csv := "Item Description,Qty,Unit\npipe bracket local supply,5,Pcs\n"
	result, err := m.MatchUpload(context.Background(), strings.NewReader(csv), "boq.csv", false, true)
	if err != nil {
		t.Fatalf("MatchUpload: %v", err)
	}
	row := result.Rows[0]
	if !row.HasMatch || row.Suggestions[0].ItemCode != "L1" {
		t.Errorf("row: %+v", row)
	}
	for _, s := range row.Suggestions {
		if s.Source != models.SourceLocal {
			t.Errorf("foreign suggestion leaked: %+v", s)
		}
	}
}

func TestMatchUpload_NoSource(t *testing.T) {
	m := newTestMatcher(t)
	_, err := m.MatchUpload(context.Background(), strings.NewReader(uploadCSV), "boq.csv", false, false)
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestMatchUpload_ShortDescriptionsUnmatched(t *testing.T) {
	m := newTestMatcher(t)

	csv := "Item Description,Qty,Unit\npump,1,Pcs\n"
	result, err := m.MatchUpload(context.Background(), strings.NewReader(csv), "boq.csv", true, true)
	if err != nil {
		t.Fatalf("MatchUpload: %v", err)
	}
	row := result.Rows[0]
	if row.HasMatch || len(row.Suggestions) != 0 {
		t.Errorf("short description should not be matched: %+v", row)
	}
}

func TestMatchUpload_DegradedFallback(t *testing.T) {
	m := newTestMatcher(t)

	csv := "some note\nanother line without structure\n"
	result, err := m.MatchUpload(context.Background(), strings.NewReader(csv), "notes.csv", true, true)
	if err != nil {
		t.Fatalf("MatchUpload: %v", err)
	}
	if !result.Degraded {
		t.Error("expected degraded result")
	}
	if result.DescriptionCol != 0 {
		t.Errorf("description column: %d", result.DescriptionCol)
	}
	if result.QuantityCol != -1 || result.UnitCol != -1 || result.UnitPriceCol != -1 {
		t.Errorf("columns should be undetected: %+v", result)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows: %d", len(result.Rows))
	}
	for _, row := range result.Rows {
		if row.HasMatch || len(row.Suggestions) != 0 {
			t.Errorf("degraded rows are never matched: %+v", row)
		}
	}
	if result.Headers[0] != "Column 1" {
		t.Errorf("headers: %v", result.Headers)
	}
}

func TestMatchUpload_Empty(t *testing.T) {
	m := newTestMatcher(t)
	_, err := m.MatchUpload(context.Background(), strings.NewReader("\n\n"), "empty.csv", true, true)
	if !errors.Is(err, ErrEmptyUpload) {
		t.Errorf("expected ErrEmptyUpload, got %v", err)
	}
}

func TestFindHeaderRow_HighConfidence(t *testing.T) {
	m := newTestMatcher(t)
	table := &Table{Rows: [][]string{
		{"Bill of Quantities"},
		{"Particulars", "Amount"},
	}}
	row, err := m.findHeaderRow(table)
	if err != nil {
		t.Fatalf("findHeaderRow: %v", err)
	}
	if row != 1 {
		t.Errorf("header row: %d", row)
	}
}

func TestFindDescriptionColumn_Fallback(t *testing.T) {
	lower := []string{"no", "stuff", "amount"}
	rows := [][]string{
		{"1", "electric fire pump with controller", "1000"},
		{"2", "smoke detector", "45"},
	}
	if got := findDescriptionColumn(lower, rows); got != 1 {
		t.Errorf("fallback column: %d", got)
	}
}

func TestTrimFooter(t *testing.T) {
	rows := [][]string{
		{"1", "fire pump"},
		{"2", "smoke detector"},
		{"", "Sub-Total"},
		{"", "In Words: two thousand"},
	}
	got := trimFooter(rows, 1)
	if len(got) != 2 {
		t.Errorf("expected 2 rows after footer trim, got %d", len(got))
	}
}

func TestTrimFooter_NoValidRowsKeepsTable(t *testing.T) {
	rows := [][]string{
		{"", "Grand Total"},
		{"", "Authorized Signature"},
	}
	got := trimFooter(rows, 1)
	if len(got) != 2 {
		t.Errorf("table without valid rows should stay untruncated, got %d rows", len(got))
	}
}
