// Package repometa enriches saved analyses with repository facts from GitHub.
package repometa

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"onboarding-backend/internal/analyses"
)

// ErrUnsupportedHost is returned for repository URLs not hosted on GitHub.
var ErrUnsupportedHost = errors.New("repository host not supported")

const maxTechnologies = 12

// Enricher looks up repository metadata through the GitHub REST API.
type Enricher struct {
	gh *github.Client
}

// NewEnricher builds an Enricher. An empty token uses unauthenticated requests.
func NewEnricher(ctx context.Context, token string) *Enricher {
	if strings.TrimSpace(token) == "" {
		return &Enricher{gh: github.NewClient(nil)}
	}
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return &Enricher{gh: github.NewClient(oauth2.NewClient(ctx, ts))}
}

// NewEnricherWithClient wraps an existing GitHub client.
func NewEnricherWithClient(gh *github.Client) *Enricher {
	return &Enricher{gh: gh}
}

// Lookup returns owner, language, technologies, file count and a complexity tier.
func (e *Enricher) Lookup(ctx context.Context, repoURL string) (analyses.Metadata, error) {
	owner, name, err := ParseGitHubURL(repoURL)
	if err != nil {
		return analyses.Metadata{}, err
	}

	repo, _, err := e.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return analyses.Metadata{}, fmt.Errorf("get repository %s/%s: %w", owner, name, err)
	}
	md := analyses.Metadata{
		Owner:    repo.GetOwner().GetLogin(),
		Language: repo.GetLanguage(),
	}

	// Languages and the file tree are independent; fetch them together.
	var (
		langs     map[string]int
		fileCount = -1
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, _, err := e.gh.Repositories.ListLanguages(gctx, owner, name)
		if err != nil {
			return fmt.Errorf("list languages %s/%s: %w", owner, name, err)
		}
		langs = l
		return nil
	})
	if branch := repo.GetDefaultBranch(); branch != "" {
		g.Go(func() error {
			// A missing or truncated tree only degrades the complexity estimate.
			tree, _, err := e.gh.Git.GetTree(gctx, owner, name, branch, true)
			if err == nil && !tree.GetTruncated() {
				fileCount = countBlobs(tree)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return analyses.Metadata{}, err
	}
	md.Technologies = technologies(langs, repo.Topics)
	md.FileCount = fileCount
	md.Complexity = complexityTier(md.FileCount, repo.GetSize())
	if md.FileCount < 0 {
		md.FileCount = 0
	}
	return md, nil
}

// ParseGitHubURL extracts owner and repository from https, ssh and scp-style GitHub URLs.
func ParseGitHubURL(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, "git@"); ok && !strings.Contains(raw, "://") {
		raw = "ssh://git@" + strings.Replace(rest, ":", "/", 1)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnsupportedHost, err)
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", ErrUnsupportedHost
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: missing owner or repository in %q", ErrUnsupportedHost, raw)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// technologies lists languages by bytes of code, then topics, without duplicates.
func technologies(langs map[string]int, topics []string) []string {
	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if langs[names[i]] == langs[names[j]] {
			return names[i] < names[j]
		}
		return langs[names[i]] > langs[names[j]]
	})

	seen := make(map[string]struct{}, len(names)+len(topics))
	out := make([]string, 0, len(names)+len(topics))
	for _, n := range append(names, topics...) {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
		if len(out) == maxTechnologies {
			break
		}
	}
	return out
}

func countBlobs(tree *github.Tree) int {
	n := 0
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" {
			n++
		}
	}
	return n
}

// complexityTier grades by file count, or by repository size in KB when the
// file count is unknown.
func complexityTier(fileCount, sizeKB int) string {
	if fileCount >= 0 {
		switch {
		case fileCount < 150:
			return analyses.ComplexityLow
		case fileCount < 1500:
			return analyses.ComplexityMedium
		default:
			return analyses.ComplexityHigh
		}
	}
	switch {
	case sizeKB < 2_000:
		return analyses.ComplexityLow
	case sizeKB < 50_000:
		return analyses.ComplexityMedium
	default:
		return analyses.ComplexityHigh
	}
}
