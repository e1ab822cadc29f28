package release

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v60/github"
	goversion "github.com/hashicorp/go-version"
)

// Resolver turns a tracking Descriptor into a concrete version.
type Resolver interface {
	Resolve(ctx context.Context, d Descriptor) (string, error)
}

// GitHubResolver resolves "latest within major N" against the upstream
// server repository's tags. Pre-releases (alpha/beta/RC) are skipped.
type GitHubResolver struct {
	inner *gh.Client
	owner string
	repo  string
}

// NewGitHubResolver creates a resolver for owner/repo. The token is
// optional; anonymous access is enough for public tag listings but is
// rate-limited more aggressively.
func NewGitHubResolver(owner, repo, token string) *GitHubResolver {
	httpClient := http.DefaultClient
	if token != "" {
		httpClient = &http.Client{Transport: &tokenTransport{token: token}}
	}
	return &GitHubResolver{inner: gh.NewClient(httpClient), owner: owner, repo: repo}
}

// tokenTransport adds Bearer token auth to HTTP requests.
type tokenTransport struct {
	token string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(req)
}

// Resolve returns the pinned version unchanged, or the highest stable tag
// within the tracked major version.
func (r *GitHubResolver) Resolve(ctx context.Context, d Descriptor) (string, error) {
	if d.IsPinned() {
		return d.Exact(), nil
	}

	var best *goversion.Version
	opts := &gh.ListOptions{PerPage: 100}

	for {
		tags, resp, err := r.inner.Repositories.ListTags(ctx, r.owner, r.repo, opts)
		if err != nil {
			return "", fmt.Errorf("list %s/%s tags: %w", r.owner, r.repo, err)
		}
		for _, tag := range tags {
			v, ok := parseStableTag(tag.GetName())
			if !ok {
				continue
			}
			if v.Segments()[0] != d.track {
				continue
			}
			if best == nil || v.GreaterThan(best) {
				best = v
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if best == nil {
		return "", fmt.Errorf("no stable release found for major version %d", d.track)
	}
	return best.Original(), nil
}

// parseStableTag accepts tags like "v28.0.7" and rejects pre-release
// markers ("v29.0.0rc1", "v29.0.0beta2").
func parseStableTag(name string) (*goversion.Version, bool) {
	trimmed := strings.TrimPrefix(name, "v")
	lower := strings.ToLower(trimmed)
	for _, marker := range []string{"rc", "beta", "alpha"} {
		if strings.Contains(lower, marker) {
			return nil, false
		}
	}
	v, err := goversion.NewVersion(trimmed)
	if err != nil {
		return nil, false
	}
	return v, true
}

// StaticResolver returns a fixed version for tracking descriptors.
// Used in tests and air-gapped setups where the version is known upfront.
type StaticResolver string

func (s StaticResolver) Resolve(_ context.Context, d Descriptor) (string, error) {
	if d.IsPinned() {
		return d.Exact(), nil
	}
	return string(s), nil
}
