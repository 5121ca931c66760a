package descriptor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/supplychain-registry-client/interfaces"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubSource reads the descriptor from a repository file through GitHub's
// contents API.
type GitHubSource struct {
	owner       string
	repo        string
	path        string
	ref         string
	apiBase     string
	client      *http.Client
	log         *slog.Logger
	locationURI string
}

// gitHubContent is the subset of the contents API response we use.
type gitHubContent struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
}

// NewGitHubSource creates a source for path in owner/repo at ref. An empty ref
// selects the default branch.
func NewGitHubSource(owner, repo, path, ref string, log *slog.Logger) *GitHubSource {
	uri := fmt.Sprintf("github://%s/%s/%s", owner, repo, path)
	if ref != "" {
		uri += "?ref=" + ref
	}
	return &GitHubSource{
		owner:       owner,
		repo:        repo,
		path:        strings.TrimPrefix(path, "/"),
		ref:         ref,
		apiBase:     defaultGitHubAPI,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
		locationURI: uri,
	}
}

func (s *GitHubSource) Fetch(ctx context.Context) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", s.apiBase, s.owner, s.repo, s.path)
	if s.ref != "" {
		endpoint += "?ref=" + url.QueryEscape(s.ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, interfaces.ErrContentNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("GitHub API error: %s, %s", resp.Status, string(body))
	}

	var content gitHubContent
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("failed to decode contents response: %w", err)
	}
	if content.Type != "" && content.Type != "file" {
		return nil, fmt.Errorf("%s is a %s, not a file", s.path, content.Type)
	}
	if content.Encoding != "base64" {
		return nil, fmt.Errorf("unexpected content encoding: %s", content.Encoding)
	}

	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode file content: %w", err)
	}

	s.log.Debug("Fetched descriptor from GitHub",
		slog.String("repo", s.owner+"/"+s.repo),
		slog.String("path", s.path),
		slog.String("sha", content.SHA),
		slog.Int("size", len(data)))

	return data, nil
}

// Available checks that the repository is accessible.
func (s *GitHubSource) Available(ctx context.Context) bool {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", s.apiBase, s.owner, s.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		s.log.Debug("Failed to create request", "err", err)
		return false
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("GitHub source unavailable", "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Debug("GitHub source unavailable", slog.String("status", resp.Status))
		return false
	}
	return true
}

func (s *GitHubSource) Name() string {
	return fmt.Sprintf("github-%s-%s", s.owner, s.repo)
}

func (s *GitHubSource) LocationURI() string {
	return s.locationURI
}
