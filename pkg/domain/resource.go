package domain

// Resource is a sharable facility identified uniquely. MaxShareCount is the
// number of simultaneous holders permitted: 0 means non-capacitated
// (bookkeeping only, effectively unlimited), 1 means exclusive, >1 means
// multi-share.
//
// RequiredBy is derived once at Job.Initialize by scanning tasks; it is
// never maintained as a live mutable back-edge (see SPEC_FULL §9).
type Resource struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	MaxShareCount        int      `json:"max_share_count"`
	ProvidedCapabilities []string `json:"provided_capabilities"` // capability IDs
	RequiredBy           []int    `json:"required_by"`           // task ids, derived
}

// ProvidesAll reports whether the resource provides every capability in caps.
func (r *Resource) ProvidesAll(caps []string) bool {
	if len(caps) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(r.ProvidedCapabilities))
	for _, c := range r.ProvidedCapabilities {
		have[c] = struct{}{}
	}
	for _, c := range caps {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

// Unbounded reports whether the resource imposes no share-count limit.
func (r *Resource) Unbounded() bool {
	return r.MaxShareCount == 0
}

// RequiredResource is a demand slot on a task: a set of required
// capabilities (all must be provided by a bound resource), a count of
// distinct resource instances to bind, and a cached FulfilledBy list of
// resources that statically satisfy the capability set.
type RequiredResource struct {
	RequiredCapabilities []string    `json:"required_capabilities"`
	NumberRequired       int         `json:"number_required"`
	FulfilledBy          []*Resource `json:"-"` // resolved at Job.Initialize
}
