// Package cli provides output helpers for the pricebook command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/offerdesk/pricebook/internal/catalog"
	"github.com/offerdesk/pricebook/internal/models"
	"github.com/offerdesk/pricebook/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteItemResults writes item search results to w in the given format.
func WriteItemResults(w io.Writer, results []models.ScoredItem, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	fmt.Fprintf(w, "\nFound %d items\n\n", len(results))
	for _, item := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%s] %s | %s\n", item.Source, item.ItemCode, item.ProductType)
		if item.Score > 0 {
			fmt.Fprintf(w, "Score: %.2f\n", item.Score)
		}
		fmt.Fprintf(w, "%s\n", utils.Truncate(catalog.HTMLToPlainText(item.Description), 200))
		fmt.Fprintf(w, "Price: %.2f %s (base %.2f)\n", item.DerivedPrice, item.Unit, item.BasePrice)
		if item.Make != "" {
			fmt.Fprintf(w, "Make: %s\n", item.Make)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteUploadResult writes an upload match summary to w in the given format.
func WriteUploadResult(w io.Writer, result *models.UploadResult, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	matched := 0
	for _, row := range result.Rows {
		if row.HasMatch {
			matched++
		}
	}
	fmt.Fprintf(w, "\nUpload %s: %d rows, %d matched\n", result.UploadID, len(result.Rows), matched)
	if result.Degraded {
		fmt.Fprintln(w, "No header row detected; processed in simple mode.")
	}
	fmt.Fprintln(w)

	for i, row := range result.Rows {
		desc := ""
		if result.DescriptionCol >= 0 && result.DescriptionCol < len(row.Cells) {
			desc = row.Cells[result.DescriptionCol]
		}
		fmt.Fprintf(w, "%3d. %s\n", i+1, utils.Truncate(desc, 80))
		for _, s := range row.Suggestions {
			fmt.Fprintf(w, "     [%s] %s (distance %.4f) %.2f %s\n",
				s.Source, s.ItemCode, s.Distance, s.DerivedPrice, s.Unit)
		}
		if !row.HasMatch {
			fmt.Fprintln(w, "     no confident match")
		}
	}
	return nil
}
