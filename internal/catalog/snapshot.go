package catalog

import (
	"sync/atomic"
	"time"

	"github.com/offerdesk/pricebook/internal/models"
	"github.com/offerdesk/pricebook/internal/vector"
)

// Snapshot is an immutable view of one item catalog. Items[i] corresponds to
// row i of Index, so a nearest-neighbor row maps directly to its item.
type Snapshot struct {
	Items   []models.CatalogItem
	Index   *vector.FlatIndex
	BuiltAt time.Time
}

// ClientSnapshot is an immutable view of the client directory with the same
// row alignment as Snapshot.
type ClientSnapshot struct {
	Clients []models.ClientRecord
	Index   *vector.FlatIndex
	BuiltAt time.Time
}

// Store holds the live snapshots. Rebuilds construct replacements off to the
// side and swap them in atomically, so readers always see a consistent pair
// of items and vectors. Any slot may be nil when its source is unavailable.
type Store struct {
	foreign atomic.Pointer[Snapshot]
	local   atomic.Pointer[Snapshot]
	clients atomic.Pointer[ClientSnapshot]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Foreign returns the current foreign-items snapshot, or nil.
func (s *Store) Foreign() *Snapshot {
	return s.foreign.Load()
}

// Local returns the current local-items snapshot, or nil.
func (s *Store) Local() *Snapshot {
	return s.local.Load()
}

// Clients returns the current client snapshot, or nil.
func (s *Store) Clients() *ClientSnapshot {
	return s.clients.Load()
}

// SetForeign swaps in a new foreign-items snapshot.
func (s *Store) SetForeign(snap *Snapshot) {
	s.foreign.Store(snap)
}

// SetLocal swaps in a new local-items snapshot.
func (s *Store) SetLocal(snap *Snapshot) {
	s.local.Store(snap)
}

// SetClients swaps in a new client snapshot.
func (s *Store) SetClients(snap *ClientSnapshot) {
	s.clients.Store(snap)
}

// Items returns all items from both catalogs, foreign first.
func (s *Store) Items() []models.CatalogItem {
	var items []models.CatalogItem
	if snap := s.Foreign(); snap != nil {
		items = append(items, snap.Items...)
	}
	if snap := s.Local(); snap != nil {
		items = append(items, snap.Items...)
	}
	return items
}

// SheetNames returns the distinct product types across both catalogs in
// first-seen order, foreign before local.
func (s *Store) SheetNames() []string {
	var names []string
	seen := make(map[string]struct{})
	for _, item := range s.Items() {
		if item.ProductType == "" {
			continue
		}
		if _, ok := seen[item.ProductType]; ok {
			continue
		}
		seen[item.ProductType] = struct{}{}
		names = append(names, item.ProductType)
	}
	return names
}
