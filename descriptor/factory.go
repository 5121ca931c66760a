package descriptor

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// SourceFor creates a descriptor source from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func SourceFor(locationURI string, log *slog.Logger) (interfaces.DescriptorSource, error) {
	if log == nil {
		log = slog.Default()
	}

	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return createFileSource(u, log)
	case "http", "https":
		return NewHTTPSource(u.String(), log), nil
	case "s3":
		return createS3Source(u, log)
	case "ipfs":
		return createIPFSSource(u, log)
	case "github":
		return createGitHubSource(u, log)
	case "dnslink":
		return createDNSLinkSource(u, log)
	case "":
		// bare paths are treated as local files
		return NewFileSource(locationURI, log), nil
	default:
		return nil, fmt.Errorf("%w: unsupported descriptor scheme: %s", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// NewLoaderFromURIs creates a Loader over every URI that yields a valid source.
// Returns an error if none does.
func NewLoaderFromURIs(locationURIs []string, log *slog.Logger) (*Loader, error) {
	if log == nil {
		log = slog.Default()
	}

	sources := make([]interfaces.DescriptorSource, 0, len(locationURIs))
	for _, uri := range locationURIs {
		source, err := SourceFor(uri, log)
		if err != nil {
			log.Warn("Failed to create descriptor source",
				"err", err,
				slog.String("locationURI", uri))
			continue
		}
		sources = append(sources, source)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no valid descriptor sources", interfaces.ErrInvalidLocationURI)
	}

	return NewLoader(sources, log), nil
}

// createFileSource handles file:///absolute/path and file://./relative/path.
func createFileSource(u *url.URL, log *slog.Logger) (interfaces.DescriptorSource, error) {
	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, u.String())
	}
	return NewFileSource(path, log), nil
}

// createS3Source handles s3://[ACCESS_KEY:SECRET_KEY@]bucket/key?region=...&endpoint=...
func createS3Source(u *url.URL, log *slog.Logger) (interfaces.DescriptorSource, error) {
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, fmt.Errorf("%w: expected s3://bucket/key", interfaces.ErrInvalidLocationURI)
	}

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Source(u.Host, key, region, query.Get("endpoint"), accessKey, secretKey, log)
}

// createIPFSSource handles ipfs://host:port/<cid>[/path]
func createIPFSSource(u *url.URL, log *slog.Logger) (interfaces.DescriptorSource, error) {
	contentPath := strings.Trim(u.Path, "/")
	if contentPath == "" {
		return nil, fmt.Errorf("%w: expected ipfs://host:port/<cid>[/path]", interfaces.ErrInvalidLocationURI)
	}

	port := u.Port()
	if port == "" {
		port = "5001"
	}

	return NewIPFSSource(u.Hostname()+":"+port, "/ipfs/"+contentPath, log), nil
}

// createGitHubSource handles github://owner/repo/path/to/file?ref=branch
func createGitHubSource(u *url.URL, log *slog.Logger) (interfaces.DescriptorSource, error) {
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if u.Host == "" || len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: expected github://owner/repo/path", interfaces.ErrInvalidLocationURI)
	}

	return NewGitHubSource(u.Host, parts[0], parts[1], u.Query().Get("ref"), log), nil
}

// createDNSLinkSource handles dnslink://domain[/path]?resolver=host:port&ipfs=host:port
func createDNSLinkSource(u *url.URL, log *slog.Logger) (interfaces.DescriptorSource, error) {
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: expected dnslink://domain[/path]", interfaces.ErrInvalidLocationURI)
	}

	query := u.Query()
	resolver := query.Get("resolver")
	if resolver == "" {
		resolver = "127.0.0.53:53"
	}
	ipfsAPI := query.Get("ipfs")
	if ipfsAPI == "" {
		ipfsAPI = "localhost:5001"
	}

	return NewDNSLinkSource(u.Hostname(), strings.Trim(u.Path, "/"), resolver, ipfsAPI, log), nil
}
