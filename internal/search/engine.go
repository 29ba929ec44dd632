package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/offerdesk/pricebook/internal/catalog"
	"github.com/offerdesk/pricebook/internal/config"
	"github.com/offerdesk/pricebook/internal/embedding"
	"github.com/offerdesk/pricebook/internal/models"
)

// Engine answers search requests against the live snapshots. Item search is
// lexical over the plain search text; client search is embedding-based.
type Engine struct {
	store *catalog.Store
	emb   embedding.Embedder
	cfg   *config.Config
}

// NewEngine creates a search engine over store.
func NewEngine(cfg *config.Config, store *catalog.Store, emb embedding.Embedder) *Engine {
	return &Engine{store: store, emb: emb, cfg: cfg}
}

// SearchItems runs a filtered keyword search. Items pass the categorical
// filters first; with no positive query terms the filtered list is returned
// unranked in catalog order. Otherwise items are scored by the fraction of
// positive terms they contain, with a 0.5 bonus for containing the whole
// query as a phrase, and sorted by score descending with foreign items
// winning ties. Ranking fields are only exposed to admin callers.
func (e *Engine) SearchItems(q models.ItemQuery) []models.ScoredItem {
	q.Normalize()

	candidates := e.collect(q.Source)
	filtered := applyFilters(candidates, q.Filters)

	parsed := ParseQuery(q.Query)
	if len(parsed.Positive) == 0 {
		return e.finish(filtered, q)
	}

	scored := make([]models.ScoredItem, 0, len(filtered))
	for _, item := range filtered {
		target := item.SearchText
		if containsAny(target, parsed.Negative) {
			continue
		}
		matched := 0
		for _, word := range parsed.Positive {
			if strings.Contains(target, word) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		item.Score = float64(matched) / float64(len(parsed.Positive))
		if strings.Contains(target, parsed.Phrase) {
			item.Score += 0.5
		}
		scored = append(scored, item)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].SourceRank < scored[j].SourceRank
	})

	return e.finish(scored, q)
}

// SearchClients returns the nearest client records for a free-text query.
func (e *Engine) SearchClients(ctx context.Context, query string) ([]models.ClientRecord, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	snap := e.store.Clients()
	if query == "" || snap == nil {
		return []models.ClientRecord{}, nil
	}

	vec, err := e.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed client query: %w", err)
	}

	k := e.cfg.Search.ClientTopK
	if k < 1 {
		k = 1
	}
	matches, err := snap.Index.Search(vec, k)
	if err != nil {
		return nil, err
	}

	results := make([]models.ClientRecord, 0, len(matches))
	for _, m := range matches {
		if m.Row < len(snap.Clients) {
			results = append(results, snap.Clients[m.Row])
		}
	}
	return results, nil
}

// collect returns the items of the requested source tagged with their origin
// and tie-break rank, foreign before local.
func (e *Engine) collect(source string) []models.ScoredItem {
	var items []models.ScoredItem
	if source == "foreign" || source == "all" {
		if snap := e.store.Foreign(); snap != nil {
			for _, item := range snap.Items {
				items = append(items, models.ScoredItem{
					CatalogItem: item,
					Source:      models.SourceForeign,
					SourceRank:  0,
				})
			}
		}
	}
	if source == "local" || source == "all" {
		if snap := e.store.Local(); snap != nil {
			for _, item := range snap.Items {
				items = append(items, models.ScoredItem{
					CatalogItem: item,
					Source:      models.SourceLocal,
					SourceRank:  1,
				})
			}
		}
	}
	return items
}

func applyFilters(items []models.ScoredItem, f models.ItemFilters) []models.ScoredItem {
	if f.Empty() {
		return items
	}
	makes := lowerSet(f.Make)
	approvals := lowerSet(f.Approvals)
	model := lowerSet(f.Model)
	productType := lowerSet(f.ProductType)

	filtered := make([]models.ScoredItem, 0, len(items))
	for _, item := range items {
		if !passes(productType, item.ProductType) {
			continue
		}
		if !passes(makes, item.Make) {
			continue
		}
		if !passes(approvals, item.Approvals) {
			continue
		}
		if !passes(model, item.Model) {
			continue
		}
		filtered = append(filtered, item)
	}
	return filtered
}

func passes(allowed map[string]struct{}, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	_, ok := allowed[strings.ToLower(value)]
	return ok
}

func lowerSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func containsAny(target string, words []string) bool {
	for _, w := range words {
		if strings.Contains(target, w) {
			return true
		}
	}
	return false
}

// finish applies role-based field stripping and the result limit.
func (e *Engine) finish(items []models.ScoredItem, q models.ItemQuery) []models.ScoredItem {
	if q.Role != models.RoleAdmin {
		for i := range items {
			items[i].Score = 0
			items[i].SourceRank = 0
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = e.cfg.Search.DefaultLimit
	}
	if max := e.cfg.Search.MaxLimit; max > 0 && (limit <= 0 || limit > max) {
		limit = max
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []models.ScoredItem{}
	}
	return items
}
