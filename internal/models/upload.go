package models

// Suggestion is one candidate catalog match for an uploaded row.
type Suggestion struct {
	CatalogItem
	Source   Source  `json:"source_type"`
	Distance float64 `json:"distance"`
}

// UploadRow is one data row of an uploaded table with its match candidates.
// Cells holds the row exactly as uploaded, padded to the header width.
type UploadRow struct {
	Cells       []string     `json:"original_data"`
	HasMatch    bool         `json:"has_match"`
	Suggestions []Suggestion `json:"suggestions"`
}

// UploadResult is the outcome of bulk-matching an uploaded table.
// Column indexes are -1 when the corresponding column was not detected.
type UploadResult struct {
	UploadID       string      `json:"upload_id"`
	Headers        []string    `json:"headers"`
	DescriptionCol int         `json:"description_column_index"`
	QuantityCol    int         `json:"quantity_column_index"`
	UnitCol        int         `json:"unit_column_index"`
	UnitPriceCol   int         `json:"unit_price_column_index"`
	Rows           []UploadRow `json:"processed_rows"`
	// Degraded is set when no header row was detected and the table was
	// processed in simple mode (every row unmatched, no suggestions).
	Degraded bool `json:"degraded,omitempty"`
}
