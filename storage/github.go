package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/keys-api/interfaces"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubSource loads a JSON snapshot committed to a GitHub repository, read
// through the contents API at a branch, tag or commit.
type GitHubSource struct {
	owner       string
	repo        string
	path        string
	ref         string
	token       string
	apiURL      string
	client      *http.Client
	log         *slog.Logger
	locationURI string
}

// NewGitHubSource creates a source for owner/repo/path at ref. An empty ref
// reads the default branch, an empty token makes anonymous requests.
func NewGitHubSource(owner, repo, path, ref, token string, log *slog.Logger) *GitHubSource {
	uri := fmt.Sprintf("github://%s/%s/%s", owner, repo, strings.TrimPrefix(path, "/"))
	if ref != "" {
		uri += "?ref=" + url.QueryEscape(ref)
	}

	return &GitHubSource{
		owner:       owner,
		repo:        repo,
		path:        strings.TrimPrefix(path, "/"),
		ref:         ref,
		token:       token,
		apiURL:      defaultGitHubAPI,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
		locationURI: uri,
	}
}

// Load downloads the raw file content and decodes it.
func (s *GitHubSource) Load(ctx context.Context) (*interfaces.Snapshot, error) {
	start := time.Now()

	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", s.apiURL, s.owner, s.repo, s.path)
	if s.ref != "" {
		endpoint += "?ref=" + url.QueryEscape(s.ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, interfaces.ErrSnapshotNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API error: %s, %s", resp.Status, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	snapshot, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Fetched snapshot from GitHub",
		slog.String("repo", s.owner+"/"+s.repo),
		slog.String("path", s.path),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return snapshot, nil
}

func (s *GitHubSource) Name() string {
	return fmt.Sprintf("github-%s-%s", s.owner, s.repo)
}

func (s *GitHubSource) LocationURI() string {
	return s.locationURI
}
