package search

import "time"

// ResultType identifies the kind of record in a search result.
type ResultType string

const (
	ResultEntity  ResultType = "entity"
	ResultLore    ResultType = "lore"
	ResultThought ResultType = "thought"
	ResultArt     ResultType = "art"
)

// ParseType maps a query parameter to a ResultType. Empty means all types.
func ParseType(value string) (ResultType, bool) {
	switch ResultType(value) {
	case "":
		return "", true
	case ResultEntity, ResultLore, ResultThought, ResultArt:
		return ResultType(value), true
	default:
		return "", false
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	Status   string     `json:"status"`
	EntityID string     `json:"entityId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Status     string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Record is the data indexed for every searchable row. Body holds the long
// text: entity description, lore content, thought body or art description.
type Record struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Summary   string     `json:"summary"`
	Body      string     `json:"body"`
	Status    string     `json:"status"`
	EntityID  string     `json:"entityId"`
	Tags      []string   `json:"tags"`
	UpdatedAt int64      `json:"updatedAt"`
}

// Timestamp converts t for Record.UpdatedAt.
func Timestamp(t time.Time) int64 {
	return t.Unix()
}
