package models

// RoleAdmin marks privileged callers that receive internal ranking fields.
const RoleAdmin = "admin"

// ItemFilters holds categorical filter sets. Empty sets mean "no
// constraint"; non-empty sets require case-insensitive membership, ANDed
// across attributes.
type ItemFilters struct {
	Make        []string `json:"make,omitempty"`
	Approvals   []string `json:"approvals,omitempty"`
	Model       []string `json:"model,omitempty"`
	ProductType []string `json:"product_type,omitempty"`
}

// Empty reports whether no filter set is given.
func (f ItemFilters) Empty() bool {
	return len(f.Make) == 0 && len(f.Approvals) == 0 && len(f.Model) == 0 && len(f.ProductType) == 0
}

// ItemQuery is a catalog item search request.
type ItemQuery struct {
	Query   string      `json:"query"`
	Source  string      `json:"source"` // "foreign", "local", or "all"
	Role    string      `json:"role"`
	Filters ItemFilters `json:"filters"`
	Limit   int         `json:"limit,omitempty"` // 0 means unlimited
}

// Normalize fills defaults for unset fields.
func (q *ItemQuery) Normalize() {
	if q.Source == "" {
		q.Source = "all"
	}
	if q.Role == "" {
		q.Role = "user"
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
}
