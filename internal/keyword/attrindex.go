// Package keyword provides a Bleve index over catalog item attributes, used
// to enumerate the distinct filter values the search UI offers.
package keyword

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/offerdesk/pricebook/internal/models"
)

// attrFields are the filterable item attributes.
var attrFields = []string{"make", "approvals", "model", "product_type"}

// attrDoc is the document shape indexed per catalog item. Values are indexed
// verbatim with the keyword analyzer so FieldDict returns them unchanged.
type attrDoc struct {
	Make        string `json:"make"`
	Approvals   string `json:"approvals"`
	Model       string `json:"model"`
	ProductType string `json:"product_type"`
}

// AttrIndex maintains an in-memory Bleve index of item attributes. Rebuilds
// construct a fresh index and swap it in, mirroring the snapshot store.
type AttrIndex struct {
	index bleve.Index
	mu    sync.RWMutex
}

// NewAttrIndex creates an empty attribute index.
func NewAttrIndex() (*AttrIndex, error) {
	index, err := newIndex()
	if err != nil {
		return nil, err
	}
	return &AttrIndex{index: index}, nil
}

func newIndex() (bleve.Index, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	for _, field := range attrFields {
		docMapping.AddFieldMappingsAt(field, keywordFieldMapping)
	}
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create attribute index: %w", err)
	}
	return index, nil
}

// Rebuild replaces the index contents with the attributes of items.
func (a *AttrIndex) Rebuild(items []models.CatalogItem) error {
	index, err := newIndex()
	if err != nil {
		return err
	}

	batch := index.NewBatch()
	for i, item := range items {
		doc := attrDoc{
			Make:        item.Make,
			Approvals:   item.Approvals,
			Model:       item.Model,
			ProductType: item.ProductType,
		}
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			_ = index.Close()
			return fmt.Errorf("failed to index item %d: %w", i, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return fmt.Errorf("failed to apply attribute batch: %w", err)
	}

	a.mu.Lock()
	old := a.index
	a.index = index
	a.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// FilterOptions returns the distinct values present for each filterable
// attribute, sorted ascending.
func (a *AttrIndex) FilterOptions() (map[string][]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	options := make(map[string][]string, len(attrFields))
	for _, field := range attrFields {
		values, err := a.fieldValues(field)
		if err != nil {
			return nil, err
		}
		options[field] = values
	}
	return options, nil
}

func (a *AttrIndex) fieldValues(field string) ([]string, error) {
	dict, err := a.index.FieldDict(field)
	if err != nil {
		return nil, fmt.Errorf("failed to read field dictionary %s: %w", field, err)
	}
	defer dict.Close()

	values := make([]string, 0)
	for {
		entry, err := dict.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Term != "" {
			values = append(values, entry.Term)
		}
	}
	sort.Strings(values)
	return values, nil
}

// DocCount returns the number of indexed items.
func (a *AttrIndex) DocCount() (uint64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.DocCount()
}

// Close closes the underlying index.
func (a *AttrIndex) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index.Close()
}
