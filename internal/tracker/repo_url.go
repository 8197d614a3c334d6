package tracker

import (
	"fmt"
	"net/url"
	"strings"
)

// RepoRef locates a repository on a tracker host.
type RepoRef struct {
	Owner string
	Repo  string
	// APIBaseURL is empty for the public tracker and points at the
	// /api/v3 endpoint for self-hosted instances.
	APIBaseURL string
}

// ParseRepoURL turns a repository web URL, as copied from the browser,
// into tracker coordinates. Deep links below the repository root
// ("/issues/42", "/tree/main") are accepted and ignored.
func ParseRepoURL(rawURL string) (*RepoRef, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid repository URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid repository URL %q: expected an http(s) URL", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid repository URL %q: missing host", rawURL)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid repository URL %q: expected /owner/repo", rawURL)
	}

	ref := &RepoRef{
		Owner: parts[0],
		Repo:  strings.TrimSuffix(parts[1], ".git"),
	}
	if !strings.EqualFold(u.Host, "github.com") {
		ref.APIBaseURL = u.Scheme + "://" + u.Host + "/api/v3"
	}
	return ref, nil
}
