// Package models defines core data structures for catalog items, clients,
// search queries, and upload matching results.
package models

// Source identifies which catalog an item belongs to.
type Source string

const (
	// SourceForeign is the imported (foreign currency) price list.
	SourceForeign Source = "foreign"
	// SourceLocal is the locally sourced price list.
	SourceLocal Source = "local"
)

// CatalogItem is one priced catalog entry. Description keeps the rich
// (HTML) form for display; SearchText is the lowercased plain-text
// derivative used for both keyword and embedding matching.
type CatalogItem struct {
	ProductType  string            `json:"product_type"`
	Description  string            `json:"description"`
	SearchText   string            `json:"search_text"`
	ItemCode     string            `json:"item_code"`
	Make         string            `json:"make,omitempty"`
	Approvals    string            `json:"approvals,omitempty"`
	Model        string            `json:"model,omitempty"`
	Installation string            `json:"installation,omitempty"`
	Unit         string            `json:"unit"`
	BasePrice    float64           `json:"po_price"`
	DerivedPrice float64           `json:"offer_price"`
	IsLocal      bool              `json:"is_local"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// ClientRecord is one entry of the client catalog.
type ClientRecord struct {
	Name       string            `json:"client_name"`
	Address    string            `json:"client_address"`
	SearchText string            `json:"search_text"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// ScoredItem is a catalog item tagged with its source and ranking fields.
// Score and SourceRank are internal; they are zeroed (and omitted from
// JSON) for non-privileged callers.
type ScoredItem struct {
	CatalogItem
	Source     Source  `json:"source_type"`
	Score      float64 `json:"relevance_score,omitempty"`
	SourceRank int     `json:"source_sort_key,omitempty"`
}
