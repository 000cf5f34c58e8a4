package model

// SourceCitation is one retrieval result attached to an assistant reply.
// MissionID is the stable identifier used for deduplication; citations
// without one are never merged with each other.
type SourceCitation struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Score     float64 `json:"score"`
	Excerpt   string  `json:"excerpt,omitempty"`
	MissionID string  `json:"mission_id,omitempty"`
}
