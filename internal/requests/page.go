package requests

// Page is one fetched page of a server side paginated list, together with the
// pagination metadata the server reported for it.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
	TotalItems int `json:"total_items"`
}

// PageTracker tracks a paginated fetch. Pagination metadata only ever comes
// from the completion of the tracked fetch itself, so push events landing
// while a page is in flight cannot disturb it.
type PageTracker[T any] struct {
	Tracker[Page[T]]
}

func NewPageTracker[T any]() *PageTracker[T] {
	return &PageTracker[T]{Tracker[Page[T]]{state: State[Page[T]]{Status: StatusIdle}}}
}
