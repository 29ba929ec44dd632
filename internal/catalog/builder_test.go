package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/offerdesk/pricebook/internal/embedding"
)

func writePriceList(t *testing.T, rows ...[]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", "Pumps"); err != nil {
		t.Fatalf("SetSheetName: %v", err)
	}
	for r, row := range rows {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue("Pumps", cell, val); err != nil {
				t.Fatalf("SetCellValue: %v", err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "prices.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestBuildCatalog(t *testing.T) {
	path := writePriceList(t,
		[]interface{}{"Description", "po_price", "Unit", "Make", "Warranty"},
		[]interface{}{"Electric fire pump 500 GPM", 1000.0, "Set", "NAFFCO", "2 years"},
		[]interface{}{"Diesel fire pump 750 GPM", 2500.5, "", ""},
		[]interface{}{"", 99.0},
		[]interface{}{"Jockey pump", "n/a"},
		[]interface{}{"Free sample", 0},
	)

	emb := embedding.NewMockEmbedder(8)
	snap, err := BuildCatalog(context.Background(), path, 0.08, "po_price", false, emb, zap.NewNop())
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}

	if len(snap.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(snap.Items))
	}
	if snap.Index.Size() != 2 {
		t.Fatalf("index size %d should match item count", snap.Index.Size())
	}

	first := snap.Items[0]
	if first.ProductType != "Pumps" {
		t.Errorf("product type: %q", first.ProductType)
	}
	if first.SearchText != "electric fire pump 500 gpm" {
		t.Errorf("search text: %q", first.SearchText)
	}
	if first.BasePrice != 1000 || first.DerivedPrice != 1080 {
		t.Errorf("prices: base=%v derived=%v", first.BasePrice, first.DerivedPrice)
	}
	if first.Unit != "Set" || first.Make != "NAFFCO" {
		t.Errorf("unit=%q make=%q", first.Unit, first.Make)
	}
	if first.ItemCode != "item_2" {
		t.Errorf("item code: %q", first.ItemCode)
	}
	if first.Extra["warranty"] != "2 years" {
		t.Errorf("extra: %v", first.Extra)
	}
	if first.IsLocal {
		t.Error("foreign item flagged local")
	}

	second := snap.Items[1]
	if second.Unit != "Pcs" {
		t.Errorf("missing unit should default to Pcs, got %q", second.Unit)
	}
	if second.DerivedPrice != 2700.54 {
		t.Errorf("derived price: %v", second.DerivedPrice)
	}
}

func TestBuildCatalog_LocalItemCodes(t *testing.T) {
	path := writePriceList(t,
		[]interface{}{"description", "po_price"},
		[]interface{}{"Local pipe bracket", 12.5},
	)

	emb := embedding.NewMockEmbedder(8)
	snap, err := BuildCatalog(context.Background(), path, 0.08, "po_price", true, emb, zap.NewNop())
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}
	if snap.Items[0].ItemCode != "local_2" {
		t.Errorf("item code: %q", snap.Items[0].ItemCode)
	}
	if !snap.Items[0].IsLocal {
		t.Error("local item not flagged")
	}
}

func TestBuildCatalog_SkipsSheetWithoutColumns(t *testing.T) {
	path := writePriceList(t,
		[]interface{}{"name", "cost"},
		[]interface{}{"Something", 5},
	)

	emb := embedding.NewMockEmbedder(8)
	_, err := BuildCatalog(context.Background(), path, 0.08, "po_price", false, emb, zap.NewNop())
	if err == nil {
		t.Fatal("expected error when no sheet has the required columns")
	}
}

func TestBuildCatalog_AllPricesNonPositive(t *testing.T) {
	path := writePriceList(t,
		[]interface{}{"description", "po_price"},
		[]interface{}{"Free sample valve", 0},
		[]interface{}{"Discontinued hose reel", -5.0},
		[]interface{}{"Price on request", "call us"},
	)

	emb := embedding.NewMockEmbedder(8)
	_, err := BuildCatalog(context.Background(), path, 0.08, "po_price", false, emb, zap.NewNop())
	if !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog when no row has a positive price, got %v", err)
	}
}

func TestBuildCatalog_ItemCodeColumnWins(t *testing.T) {
	path := writePriceList(t,
		[]interface{}{"description", "po_price", "item_code"},
		[]interface{}{"Alarm valve 4 inch", 320, "AV-400"},
	)

	emb := embedding.NewMockEmbedder(8)
	snap, err := BuildCatalog(context.Background(), path, 0.08, "po_price", false, emb, zap.NewNop())
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}
	if snap.Items[0].ItemCode != "AV-400" {
		t.Errorf("item code: %q", snap.Items[0].ItemCode)
	}
}

func TestFindColumn(t *testing.T) {
	header := []string{" Description ", "PO_Price", ""}
	if got := findColumn(header, "description"); got != 0 {
		t.Errorf("description: %d", got)
	}
	if got := findColumn(header, "po_price"); got != 1 {
		t.Errorf("po_price: %d", got)
	}
	if got := findColumn(header, "unit"); got != -1 {
		t.Errorf("unit: %d", got)
	}
}

func TestParsePrice(t *testing.T) {
	if v, err := parsePrice(" 1,250.75 "); err != nil || v != 1250.75 {
		t.Errorf("got %v, %v", v, err)
	}
	if _, err := parsePrice("call for price"); err == nil {
		t.Error("expected error for non-numeric price")
	}
	if _, err := parsePrice(""); err == nil {
		t.Error("expected error for empty price")
	}
}
