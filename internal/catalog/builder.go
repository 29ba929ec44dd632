package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/offerdesk/pricebook/internal/embedding"
	"github.com/offerdesk/pricebook/internal/models"
	"github.com/offerdesk/pricebook/internal/vector"
)

// ErrEmptyCatalog is returned when a price list yields no usable items.
var ErrEmptyCatalog = errors.New("no usable items in price list")

// optionalColumns are recognized by name; any other header goes into Extra.
var optionalColumns = map[string]struct{}{
	"item_code":    {},
	"make":         {},
	"approvals":    {},
	"model":        {},
	"installation": {},
	"unit":         {},
}

// BuildCatalog reads an xlsx price list and produces a snapshot with one
// embedded vector per item. Each sheet becomes a product type; sheets missing
// the description or price column are skipped. Rows with an empty description
// or a non-positive price are dropped. DerivedPrice applies markup to the
// base price, rounded to 2 decimals.
func BuildCatalog(ctx context.Context, path string, markup float64, priceColumn string, isLocal bool, emb embedding.Embedder, logger *zap.Logger) (*Snapshot, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open price list: %w", err)
	}
	defer f.Close()

	var items []models.CatalogItem
	for _, sheet := range f.GetSheetList() {
		sheetItems, err := buildSheet(f, sheet, markup, priceColumn, isLocal, logger)
		if err != nil {
			return nil, err
		}
		items = append(items, sheetItems...)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCatalog, path)
	}

	// Rows without search text cannot be embedded; keeping them would shift
	// every later row out of alignment with the index, so drop them entirely.
	kept := items[:0]
	texts := make([]string, 0, len(items))
	for _, item := range items {
		if item.SearchText == "" {
			continue
		}
		kept = append(kept, item)
		texts = append(texts, item.SearchText)
	}
	items = kept
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCatalog, path)
	}

	embeddings, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed price list: %w", err)
	}
	index, err := vector.NewFlatIndex(emb.Dimensions())
	if err != nil {
		return nil, err
	}
	if err := index.Append(embeddings); err != nil {
		return nil, err
	}

	return &Snapshot{Items: items, Index: index, BuiltAt: time.Now()}, nil
}

func buildSheet(f *excelize.File, sheet string, markup float64, priceColumn string, isLocal bool, logger *zap.Logger) ([]models.CatalogItem, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	header := rows[0]
	descCol := findColumn(header, "description")
	priceCol := findColumn(header, priceColumn)
	if descCol < 0 || priceCol < 0 {
		logger.Warn("skipping sheet without required columns",
			zap.String("sheet", sheet),
			zap.String("price_column", priceColumn))
		return nil, nil
	}

	colMap := make(map[string]int)
	var extraCols []int
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || i == descCol || i == priceCol {
			continue
		}
		if _, ok := optionalColumns[key]; ok {
			if _, dup := colMap[key]; !dup {
				colMap[key] = i
			}
			continue
		}
		extraCols = append(extraCols, i)
	}

	var items []models.CatalogItem
	for r := 1; r < len(rows); r++ {
		row := rows[r]
		descPlain := cellAt(row, descCol)
		if strings.TrimSpace(descPlain) == "" {
			continue
		}

		price, err := parsePrice(cellAt(row, priceCol))
		if err != nil || price <= 0 {
			continue
		}

		cellRef, err := excelize.CoordinatesToCellName(descCol+1, r+1)
		if err != nil {
			return nil, fmt.Errorf("cell name for sheet %q row %d: %w", sheet, r+1, err)
		}
		descHTML := cellHTML(f, sheet, cellRef, descPlain)

		item := models.CatalogItem{
			ProductType:  sheet,
			Description:  descHTML,
			SearchText:   strings.ToLower(HTMLToPlainText(descHTML)),
			Make:         columnValue(row, colMap, "make"),
			Approvals:    columnValue(row, colMap, "approvals"),
			Model:        columnValue(row, colMap, "model"),
			Installation: columnValue(row, colMap, "installation"),
			BasePrice:    price,
			DerivedPrice: roundCents(price * (1 + markup)),
			IsLocal:      isLocal,
		}

		item.ItemCode = columnValue(row, colMap, "item_code")
		if item.ItemCode == "" {
			if isLocal {
				item.ItemCode = fmt.Sprintf("local_%d", r+1)
			} else {
				item.ItemCode = fmt.Sprintf("item_%d", r+1)
			}
		}

		item.Unit = columnValue(row, colMap, "unit")
		if item.Unit == "" {
			item.Unit = "Pcs"
		}

		for _, col := range extraCols {
			val := strings.TrimSpace(cellAt(row, col))
			if val == "" {
				continue
			}
			if item.Extra == nil {
				item.Extra = make(map[string]string)
			}
			item.Extra[strings.ToLower(strings.TrimSpace(header[col]))] = val
		}

		items = append(items, item)
	}
	return items, nil
}

// findColumn returns the index of the first header cell equal to name after
// trimming and lowercasing, or -1.
func findColumn(header []string, name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, cell := range header {
		if strings.ToLower(strings.TrimSpace(cell)) == name {
			return i
		}
	}
	return -1
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func columnValue(row []string, colMap map[string]int, name string) string {
	idx, ok := colMap[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(cellAt(row, idx))
}

func parsePrice(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(s, 64)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
