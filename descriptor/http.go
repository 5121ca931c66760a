package descriptor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// maxDescriptorSize bounds descriptor documents fetched over the network.
const maxDescriptorSize = 8 << 20

// HTTPSource fetches the descriptor with a plain GET, the way a browser
// client loads it next to its static assets.
type HTTPSource struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewHTTPSource creates a source fetching rawURL.
func NewHTTPSource(rawURL string, log *slog.Logger) *HTTPSource {
	return &HTTPSource{
		url:    rawURL,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, interfaces.ErrContentNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status fetching descriptor: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptorSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	s.log.Debug("Fetched descriptor over HTTP", slog.String("url", s.url), slog.Int("size", len(data)))
	return data, nil
}

// Available reports whether the URL looks fetchable. Reachability is left to Fetch.
func (s *HTTPSource) Available(ctx context.Context) bool {
	u, err := url.Parse(s.url)
	return err == nil && u.Host != ""
}

func (s *HTTPSource) Name() string {
	u, err := url.Parse(s.url)
	if err != nil {
		return "http"
	}
	return "http-" + u.Host
}

func (s *HTTPSource) LocationURI() string {
	return s.url
}
