package models

import "time"

// AnswerRecord is one answered query, persisted for the history endpoint
// and offline quality review.
type AnswerRecord struct {
	ID           string    `json:"id"`
	QueryText    string    `json:"query_text"`
	Answer       string    `json:"answer"`
	Confidence   float64   `json:"confidence"`
	ChunksUsed   int       `json:"chunks_used"`
	FallbackUsed bool      `json:"fallback_used"`
	LatencyMS    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// AnswerSource is one citation attached to an answer.
type AnswerSource struct {
	AnswerID   string  `json:"answer_id"`
	URL        string  `json:"url"`
	SourceFile string  `json:"source_file"`
	Similarity float64 `json:"similarity"`
}

// Feedback is a user's rating of an answer.
type Feedback struct {
	AnswerID  string    `json:"answer_id"`
	Helpful   bool      `json:"helpful"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
