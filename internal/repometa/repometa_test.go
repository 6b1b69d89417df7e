package repometa

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-backend/internal/analyses"
)

func newTestEnricher(t *testing.T, mux *http.ServeMux) *Enricher {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	gh := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base
	return NewEnricherWithClient(gh)
}

func TestLookupCollectsRepositoryFacts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"widgets","owner":{"login":"acme"},"language":"Go","size":900,"default_branch":"main","topics":["gin","go","docker"]}`)
	})
	mux.HandleFunc("/repos/acme/widgets/languages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Go":50000,"TypeScript":12000,"Dockerfile":300}`)
	})
	mux.HandleFunc("/repos/acme/widgets/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		var entries []string
		for i := 0; i < 200; i++ {
			entries = append(entries, fmt.Sprintf(`{"path":"f%d.go","type":"blob"}`, i))
		}
		entries = append(entries, `{"path":"internal","type":"tree"}`)
		fmt.Fprintf(w, `{"sha":"abc","truncated":false,"tree":[%s]}`, strings.Join(entries, ","))
	})

	md, err := newTestEnricher(t, mux).Lookup(context.Background(), "https://github.com/acme/widgets.git")
	require.NoError(t, err)
	assert.Equal(t, "acme", md.Owner)
	assert.Equal(t, "Go", md.Language)
	assert.Equal(t, 200, md.FileCount)
	assert.Equal(t, analyses.ComplexityMedium, md.Complexity)
	assert.Equal(t, []string{"Go", "TypeScript", "Dockerfile", "gin", "docker"}, md.Technologies)
}

func TestLookupFallsBackToSizeWhenTreeTruncated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/monolith", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"owner":{"login":"acme"},"language":"Java","size":120000,"default_branch":"trunk"}`)
	})
	mux.HandleFunc("/repos/acme/monolith/languages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/repos/acme/monolith/git/trees/trunk", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sha":"abc","truncated":true,"tree":[]}`)
	})

	md, err := newTestEnricher(t, mux).Lookup(context.Background(), "git@github.com:acme/monolith.git")
	require.NoError(t, err)
	assert.Equal(t, analyses.ComplexityHigh, md.Complexity)
	assert.Equal(t, 0, md.FileCount)
	assert.Empty(t, md.Technologies)
}

func TestLookupPropagatesAPIErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/private", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	_, err := newTestEnricher(t, mux).Lookup(context.Background(), "https://github.com/acme/private")
	var ghErr *github.ErrorResponse
	require.ErrorAs(t, err, &ghErr)
	assert.Equal(t, http.StatusNotFound, ghErr.Response.StatusCode)
}

func TestParseGitHubURL(t *testing.T) {
	cases := map[string][2]string{
		"https://github.com/acme/widgets":           {"acme", "widgets"},
		"https://www.github.com/acme/widgets/":      {"acme", "widgets"},
		"https://github.com/acme/widgets/tree/main": {"acme", "widgets"},
		"git@github.com:acme/widgets.git":           {"acme", "widgets"},
		"ssh://git@github.com/acme/widgets.git":     {"acme", "widgets"},
	}
	for raw, want := range cases {
		owner, name, err := ParseGitHubURL(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want[0], owner, raw)
		assert.Equal(t, want[1], name, raw)
	}

	for _, raw := range []string{"https://gitlab.com/acme/widgets", "https://github.com/acme", "not a url"} {
		_, _, err := ParseGitHubURL(raw)
		assert.ErrorIs(t, err, ErrUnsupportedHost, raw)
	}
}

func TestComplexityTier(t *testing.T) {
	assert.Equal(t, analyses.ComplexityLow, complexityTier(10, 0))
	assert.Equal(t, analyses.ComplexityMedium, complexityTier(150, 0))
	assert.Equal(t, analyses.ComplexityHigh, complexityTier(5000, 0))
	assert.Equal(t, analyses.ComplexityLow, complexityTier(-1, 100))
	assert.Equal(t, analyses.ComplexityMedium, complexityTier(-1, 10_000))
}
