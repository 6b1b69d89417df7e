package analyses

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Complexity tiers reported in Metadata.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// LocalIDPrefix marks records that exist only in memory because persistence failed.
const LocalIDPrefix = "local-"

// Record is one completed repository analysis owned by exactly one user.
type Record struct {
	ID             string               `json:"id"`
	UserID         string               `json:"userId"`
	RepoURL        string               `json:"repoUrl"`
	RepoName       string               `json:"repoName"`
	Data           json.RawMessage      `json:"data"`
	Metadata       Optional[Metadata]   `json:"metadata"`
	TokenUsage     Optional[TokenUsage] `json:"tokenUsage"`
	Status         string               `json:"status"`
	IsFavorite     bool                 `json:"isFavorite"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
	LastAccessedAt time.Time            `json:"lastAccessedAt"`
}

// Persisted reports whether the record was saved to the store.
func (r Record) Persisted() bool {
	return r.ID != "" && !strings.HasPrefix(r.ID, LocalIDPrefix)
}

// Clone returns a copy of r that shares no slices with it.
func (r Record) Clone() Record {
	if r.Data != nil {
		r.Data = append(json.RawMessage(nil), r.Data...)
	}
	if md, ok := r.Metadata.Get(); ok && md.Technologies != nil {
		md.Technologies = append([]string(nil), md.Technologies...)
		r.Metadata = Some(md)
	}
	return r
}

// Metadata describes the analyzed repository.
type Metadata struct {
	Owner        string   `json:"owner,omitempty"`
	Language     string   `json:"language,omitempty"`
	FileCount    int      `json:"fileCount,omitempty"`
	Complexity   string   `json:"complexity,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// TokenUsage counts tokens consumed producing the analysis.
type TokenUsage struct {
	TotalTokens int64 `json:"totalTokens"`
}

// Payload is what a caller supplies when saving an analysis.
type Payload struct {
	RepoName   string
	Data       json.RawMessage
	Metadata   Optional[Metadata]
	TokenUsage Optional[TokenUsage]
}

// Optional holds a value that may be absent. The zero value is absent and encodes as JSON null.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether a value is held.
func (o Optional[T]) Present() bool {
	return o.ok
}

// OrElse returns the value or def when absent.
func (o Optional[T]) OrElse(def T) T {
	if o.ok {
		return o.value
	}
	return def
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// RepoNameFromURL derives "owner/name" for hosted git URLs, falling back to the last path segment.
func RepoNameFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	// scp-style remotes: git@host:owner/name.git
	if i := strings.Index(raw, ":"); i > 0 && !strings.Contains(raw, "://") && strings.Contains(raw[:i], "@") {
		raw = "ssh://" + raw[:i] + "/" + raw[i+1:]
	}
	u, err := url.Parse(raw)
	path := raw
	if err == nil && u.Host != "" {
		path = u.Path
	}
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	var segs []string
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	switch {
	case len(segs) == 0:
		return raw
	case len(segs) >= 2 && err == nil && u.Host != "":
		return segs[0] + "/" + segs[1]
	default:
		return segs[len(segs)-1]
	}
}
