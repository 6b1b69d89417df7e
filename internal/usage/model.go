package usage

import "time"

// Usage is a user's running analysis counters.
type Usage struct {
	UserID          string     `json:"userId"`
	AnalysesCreated int64      `json:"analysesCreated"`
	TotalTokens     int64      `json:"totalTokens"`
	LastAnalysisAt  *time.Time `json:"lastAnalysisAt"`
}
