package handler

// RateResponse represents the response for the single-rate endpoint.
// Rates are serialized as decimal strings to avoid binary float drift on
// the wire.
type RateResponse struct {
	Base        string   `json:"base"`
	Quote       string   `json:"quote"`
	Rate        string   `json:"rate"`
	InverseRate string   `json:"inverse_rate"`
	Path        []string `json:"path"`
	Direct      bool     `json:"direct"`
	Source      string   `json:"source,omitempty"`
	ObservedAt  string   `json:"observed_at,omitempty"`
	Fresh       bool     `json:"fresh"`
}

// RateListItem is one pair in a rate listing.
type RateListItem struct {
	Base       string `json:"base"`
	Quote      string `json:"quote"`
	Rate       string `json:"rate"`
	ObservedAt string `json:"observed_at"`
	Source     string `json:"source"`
}

// RateListResponse represents the response for the rate listing endpoint.
type RateListResponse struct {
	Rates      []RateListItem `json:"rates"`
	Total      int            `json:"total"`
	Version    uint64         `json:"version"`
	LastUpdate string         `json:"last_update,omitempty"`
}

// StatusResponse represents the response for the status endpoint.
type StatusResponse struct {
	PairCount  int      `json:"pair_count"`
	Version    uint64   `json:"version"`
	LastUpdate string   `json:"last_update,omitempty"`
	AgeSeconds float64  `json:"age_seconds"`
	Fresh      bool     `json:"fresh"`
	Degraded   bool     `json:"degraded"`
	Sources    []string `json:"sources"`
}

// UpdateResponse represents the response for the update endpoint.
type UpdateResponse struct {
	Fetched    int            `json:"fetched"`
	Merged     int            `json:"merged"`
	Evicted    int            `json:"evicted"`
	Sources    map[string]int `json:"sources,omitempty"`
	Version    uint64         `json:"version"`
	DurationMS int64          `json:"duration_ms"`
	Degraded   bool           `json:"degraded"`
	Warning    string         `json:"warning,omitempty"`
}

// HistoryItem is one archived quote.
type HistoryItem struct {
	ID         string `json:"id"`
	Base       string `json:"base"`
	Quote      string `json:"quote"`
	Rate       string `json:"rate"`
	ObservedAt string `json:"observed_at"`
	Source     string `json:"source"`
	RecordedAt string `json:"recorded_at"`
}

// HistoryResponse represents the response for the history endpoint.
type HistoryResponse struct {
	Pair    string        `json:"pair"`
	Entries []HistoryItem `json:"entries"`
	Total   int           `json:"total"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error       string `json:"error"`
	Status      int    `json:"status"`
	Description string `json:"description,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}
