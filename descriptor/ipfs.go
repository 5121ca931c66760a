package descriptor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// IPFSSource reads the descriptor from an IPFS node through its HTTP API.
type IPFSSource struct {
	shell       *shell.Shell
	apiAddr     string
	path        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSSource creates a source reading ipfsPath (/ipfs/<cid>[/path]) through
// the node at apiAddr (host:port).
func NewIPFSSource(apiAddr, ipfsPath string, log *slog.Logger) *IPFSSource {
	return &IPFSSource{
		shell:       shell.NewShell(apiAddr),
		apiAddr:     apiAddr,
		path:        ipfsPath,
		log:         log,
		locationURI: "ipfs://" + apiAddr + strings.TrimPrefix(ipfsPath, "/ipfs"),
	}
}

func (s *IPFSSource) Fetch(ctx context.Context) ([]byte, error) {
	return catIPFS(ctx, s.shell, s.path, s.log)
}

func (s *IPFSSource) Available(ctx context.Context) bool {
	return s.shell.IsUp()
}

func (s *IPFSSource) Name() string {
	return "ipfs-" + s.apiAddr
}

func (s *IPFSSource) LocationURI() string {
	return s.locationURI
}

func catIPFS(ctx context.Context, sh *shell.Shell, path string, log *slog.Logger) ([]byte, error) {
	start := time.Now()

	if !sh.IsUp() {
		log.Warn("IPFS node unavailable", slog.String("path", path))
		return nil, interfaces.ErrBackendUnavailable
	}

	resp, err := sh.Request("cat", path).Send(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch descriptor from IPFS: %w", err)
	}
	defer resp.Close()
	if resp.Error != nil {
		if strings.Contains(resp.Error.Message, "no link named") || strings.Contains(resp.Error.Message, "not found") {
			log.Debug("Descriptor not found in IPFS", slog.String("path", path))
			return nil, interfaces.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to fetch descriptor from IPFS: %w", resp.Error)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Output, maxDescriptorSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor from IPFS: %w", err)
	}

	log.Debug("Fetched descriptor from IPFS",
		slog.String("path", path),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}
