package audit

import "time"

// TimelineFilters narrows an audit timeline query. Zero values mean "no
// filter"; Actor/Entity/Action match exactly.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// Entry is one recorded administrative mutation.
type Entry struct {
	ID       int64
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
}

// Result bundles a timeline page with its paging metadata.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}
