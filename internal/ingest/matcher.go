package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/offerdesk/pricebook/internal/catalog"
	"github.com/offerdesk/pricebook/internal/config"
	"github.com/offerdesk/pricebook/internal/embedding"
	"github.com/offerdesk/pricebook/internal/models"
)

var (
	// ErrEmptyUpload is returned when an upload contains no data at all.
	ErrEmptyUpload = errors.New("uploaded file appears to be empty")
	// ErrNoSource is returned when both catalogs are deselected.
	ErrNoSource = errors.New("at least one item source must be selected")
	// errHeaderNotFound triggers the degraded single-column fallback.
	errHeaderNotFound = errors.New("could not detect a valid header row")
)

// Column vocabulary for detecting the structure of uploaded tables.
var (
	headerKeywords        = []string{"sl", "description", "desc", "item", "particulars", "qty", "quantity", "unit"}
	highConfidenceHeaders = []string{"item description", "particulars"}

	descriptionColumnNames = []string{"description", "desc", "details", "item name", "item description", "particulars"}
	quantityColumnNames    = []string{"qty", "quantity"}
	unitColumnNames        = []string{"unit", "units", "uom"}
	priceColumnNames       = []string{"price", "rate", "unit price", "unit_price", "amount"}

	footerKeywords = []string{"total", "grand total", "subtotal", "sub-total", "authorized", "signature", "in words"}
)

// Matcher matches uploaded requirement rows against the catalog embeddings.
type Matcher struct {
	store  *catalog.Store
	emb    embedding.Embedder
	cfg    *config.Config
	logger *zap.Logger
}

// NewMatcher creates a matcher over the live snapshots.
func NewMatcher(cfg *config.Config, store *catalog.Store, emb embedding.Embedder, logger *zap.Logger) *Matcher {
	return &Matcher{store: store, emb: emb, cfg: cfg, logger: logger}
}

// MatchUpload parses an uploaded table, detects its structure, and attaches
// catalog suggestions to every row with a usable description. When no header
// row can be detected the table is returned in degraded form: first
// non-empty column as description, every row unmatched.
func (m *Matcher) MatchUpload(ctx context.Context, r io.Reader, filename string, useForeign, useLocal bool) (*models.UploadResult, error) {
	if !useForeign && !useLocal {
		return nil, ErrNoSource
	}

	table, err := ReadTable(r, filename)
	if err != nil {
		return nil, err
	}

	result, err := m.matchSmart(ctx, table, useForeign, useLocal)
	if err != nil {
		m.logger.Warn("structured parsing failed, falling back to simple mode",
			zap.String("filename", filename), zap.Error(err))
		return matchDegenerate(table)
	}
	return result, nil
}

func (m *Matcher) matchSmart(ctx context.Context, table *Table, useForeign, useLocal bool) (*models.UploadResult, error) {
	headerRow, err := m.findHeaderRow(table)
	if err != nil {
		return nil, err
	}

	headers := table.Rows[headerRow]
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var dataRows [][]string
	for _, row := range table.Rows[headerRow+1:] {
		if rowEmpty(row) {
			continue
		}
		dataRows = append(dataRows, padRow(row, len(headers)))
	}

	descCol := findDescriptionColumn(lower, dataRows)
	qtyCol := findNamedColumn(lower, quantityColumnNames)
	unitCol := findNamedColumn(lower, unitColumnNames)
	priceCol := findPriceColumn(lower, dataRows)

	dataRows = trimFooter(dataRows, descCol)

	// Rows without a description carry nothing to match or quote.
	kept := dataRows[:0]
	for _, row := range dataRows {
		if strings.TrimSpace(row[descCol]) != "" {
			kept = append(kept, row)
		}
	}
	dataRows = kept

	result := &models.UploadResult{
		UploadID:       uuid.NewString(),
		Headers:        headers,
		DescriptionCol: descCol,
		QuantityCol:    qtyCol,
		UnitCol:        unitCol,
		UnitPriceCol:   priceCol,
		Rows:           make([]models.UploadRow, 0, len(dataRows)),
	}

	for _, row := range dataRows {
		result.Rows = append(result.Rows, m.matchRow(ctx, row, descCol, useForeign, useLocal))
	}
	return result, nil
}

// findHeaderRow scans the first HeaderScanRows rows for one that looks like
// a column header: at least two header keywords present, or a cell that is
// exactly a high-confidence header name.
func (m *Matcher) findHeaderRow(table *Table) (int, error) {
	scan := m.cfg.Match.HeaderScanRows
	if scan <= 0 || scan > len(table.Rows) {
		scan = len(table.Rows)
	}
	for i := 0; i < scan; i++ {
		var cells []string
		for _, cell := range table.Rows[i] {
			c := strings.ToLower(strings.TrimSpace(cell))
			if c != "" {
				cells = append(cells, c)
			}
		}
		if len(cells) == 0 {
			continue
		}

		matches := 0
		for _, keyword := range headerKeywords {
			for _, cell := range cells {
				if strings.Contains(cell, keyword) {
					matches++
					break
				}
			}
		}

		highConfidence := false
		for _, name := range highConfidenceHeaders {
			for _, cell := range cells {
				if cell == name {
					highConfidence = true
					break
				}
			}
		}

		if matches >= 2 || highConfidence {
			return i, nil
		}
	}
	return -1, errHeaderNotFound
}

// findDescriptionColumn prefers a known column name, then falls back to the
// non-numeric column with the longest average cell text.
func findDescriptionColumn(lower []string, dataRows [][]string) int {
	for _, name := range descriptionColumnNames {
		for i, col := range lower {
			if col == name {
				return i
			}
		}
	}

	best, bestAvg := 0, 0.0
	for i := range lower {
		total, count, numeric := 0, 0, 0
		for _, row := range dataRows {
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue
			}
			count++
			total += len(cell)
			if isNumeric(cell) {
				numeric++
			}
		}
		if count == 0 || numeric == count {
			continue
		}
		if avg := float64(total) / float64(count); avg > bestAvg {
			best, bestAvg = i, avg
		}
	}
	return best
}

func findNamedColumn(lower []string, names []string) int {
	found := -1
	for i, col := range lower {
		for _, name := range names {
			if col == name {
				found = i
			}
		}
	}
	return found
}

// findPriceColumn requires both a price-like header and at least one numeric
// cell, so "Price in words" style columns do not qualify.
func findPriceColumn(lower []string, dataRows [][]string) int {
	found := -1
	for i, col := range lower {
		named := false
		for _, name := range priceColumnNames {
			if col == name {
				named = true
				break
			}
		}
		if !named {
			continue
		}
		for _, row := range dataRows {
			if isNumeric(strings.TrimSpace(row[i])) {
				found = i
				break
			}
		}
	}
	return found
}

// trimFooter drops trailing rows from the last row whose description is
// empty or matches a footer keyword (totals, signature blocks). When no row
// qualifies as valid the table is returned untruncated; rows that are all
// footer text are still the caller's data.
func trimFooter(dataRows [][]string, descCol int) [][]string {
	last := -1
	for i := len(dataRows) - 1; i >= 0; i-- {
		desc := strings.ToLower(strings.TrimSpace(dataRows[i][descCol]))
		if desc == "" {
			continue
		}
		if containsAnyKeyword(desc, footerKeywords) {
			continue
		}
		last = i
		break
	}
	if last == -1 {
		return dataRows
	}
	return dataRows[:last+1]
}

func containsAnyKeyword(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchRow(ctx context.Context, row []string, descCol int, useForeign, useLocal bool) models.UploadRow {
	out := models.UploadRow{Cells: row, Suggestions: []models.Suggestion{}}

	desc := strings.TrimSpace(row[descCol])
	if len(desc) <= m.cfg.Match.MinDescriptionLen {
		return out
	}

	vec, err := m.emb.Embed(ctx, strings.ToLower(desc))
	if err != nil {
		m.logger.Warn("failed to embed upload row", zap.Error(err))
		return out
	}

	var candidates []models.Suggestion
	if useForeign {
		candidates = append(candidates, m.searchSnapshot(m.store.Foreign(), models.SourceForeign, vec)...)
	}
	if useLocal {
		candidates = append(candidates, m.searchSnapshot(m.store.Local(), models.SourceLocal, vec)...)
	}
	if len(candidates) == 0 {
		return out
	}

	// Foreign candidates were appended first, so a stable sort keeps them
	// ahead of equally distant local ones.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})

	if candidates[0].Distance < m.cfg.Match.Threshold {
		out.HasMatch = true
	}
	topK := m.cfg.Match.TopK
	if topK < 1 || topK > len(candidates) {
		topK = len(candidates)
	}
	out.Suggestions = candidates[:topK]
	return out
}

func (m *Matcher) searchSnapshot(snap *catalog.Snapshot, source models.Source, vec []float32) []models.Suggestion {
	if snap == nil || snap.Index.Size() == 0 {
		return nil
	}
	matches, err := snap.Index.Search(vec, m.cfg.Match.TopK)
	if err != nil {
		m.logger.Warn("snapshot search failed", zap.String("source", string(source)), zap.Error(err))
		return nil
	}
	suggestions := make([]models.Suggestion, 0, len(matches))
	for _, match := range matches {
		if match.Row >= len(snap.Items) {
			continue
		}
		suggestions = append(suggestions, models.Suggestion{
			CatalogItem: snap.Items[match.Row],
			Source:      source,
			Distance:    match.Distance,
		})
	}
	return suggestions
}

// matchDegenerate handles tables without a detectable header: the first
// column holding any value becomes the description column and no matching is
// attempted.
func matchDegenerate(table *Table) (*models.UploadResult, error) {
	var dataRows [][]string
	for _, row := range table.Rows {
		if !rowEmpty(row) {
			dataRows = append(dataRows, row)
		}
	}
	if len(dataRows) == 0 {
		return nil, ErrEmptyUpload
	}

	width := 0
	for _, row := range dataRows {
		if len(row) > width {
			width = len(row)
		}
	}

	descCol := -1
	for col := 0; col < width && descCol == -1; col++ {
		for _, row := range dataRows {
			if col < len(row) && strings.TrimSpace(row[col]) != "" {
				descCol = col
				break
			}
		}
	}
	if descCol == -1 {
		return nil, ErrEmptyUpload
	}

	headers := make([]string, width)
	for i := range headers {
		headers[i] = fmt.Sprintf("Column %d", i+1)
	}

	result := &models.UploadResult{
		UploadID:       uuid.NewString(),
		Headers:        headers,
		DescriptionCol: descCol,
		QuantityCol:    -1,
		UnitCol:        -1,
		UnitPriceCol:   -1,
		Rows:           make([]models.UploadRow, 0, len(dataRows)),
		Degraded:       true,
	}
	for _, row := range dataRows {
		result.Rows = append(result.Rows, models.UploadRow{
			Cells:       padRow(row, width),
			Suggestions: []models.Suggestion{},
		})
	}
	return result, nil
}

func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return err == nil
}
