package descriptor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/miekg/dns"
	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// DNSLinkSource resolves the descriptor's IPFS path from a DNSLink TXT record
// (_dnslink.<domain> "dnslink=/ipfs/<cid>") and reads it through an IPFS node.
// Publishing a new descriptor then only requires updating the TXT record.
type DNSLinkSource struct {
	domain   string
	subpath  string
	resolver string
	shell    *shell.Shell
	ipfsAPI  string
	client   *dns.Client
	log      *slog.Logger
}

// NewDNSLinkSource creates a DNSLink source. subpath is appended to the
// resolved IPFS path when the link points at a directory.
func NewDNSLinkSource(domain, subpath, resolver, ipfsAPI string, log *slog.Logger) *DNSLinkSource {
	return &DNSLinkSource{
		domain:   domain,
		subpath:  strings.Trim(subpath, "/"),
		resolver: resolver,
		shell:    shell.NewShell(ipfsAPI),
		ipfsAPI:  ipfsAPI,
		client:   new(dns.Client),
		log:      log,
	}
}

func (s *DNSLinkSource) Fetch(ctx context.Context) ([]byte, error) {
	path, err := s.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if s.subpath != "" {
		path = path + "/" + s.subpath
	}
	return catIPFS(ctx, s.shell, path, s.log)
}

// Resolve queries the DNSLink TXT record and returns the linked IPFS path.
func (s *DNSLinkSource) Resolve(ctx context.Context) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn("_dnslink."+s.domain), dns.TypeTXT)
	m.RecursionDesired = true

	in, _, err := s.client.ExchangeContext(ctx, m, s.resolver)
	if err != nil {
		return "", fmt.Errorf("%w: dnslink lookup failed: %v", interfaces.ErrBackendUnavailable, err)
	}
	if in.Rcode == dns.RcodeNameError {
		return "", interfaces.ErrContentNotFound
	}

	var records []string
	for _, answer := range in.Answer {
		if txt, ok := answer.(*dns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}

	path, ok := parseDNSLink(records)
	if !ok {
		s.log.Debug("No ipfs dnslink record", slog.String("domain", s.domain), slog.Any("records", records))
		return "", interfaces.ErrContentNotFound
	}

	s.log.Debug("Resolved dnslink", slog.String("domain", s.domain), slog.String("path", path))
	return path, nil
}

// parseDNSLink returns the first /ipfs/ path among TXT record values.
func parseDNSLink(records []string) (string, bool) {
	for _, record := range records {
		value, found := strings.CutPrefix(strings.TrimSpace(record), "dnslink=")
		if !found {
			continue
		}
		value = strings.TrimRight(value, "/")
		if strings.HasPrefix(value, "/ipfs/") && len(value) > len("/ipfs/") {
			return value, true
		}
	}
	return "", false
}

func (s *DNSLinkSource) Available(ctx context.Context) bool {
	return s.shell.IsUp()
}

func (s *DNSLinkSource) Name() string {
	return "dnslink-" + s.domain
}

func (s *DNSLinkSource) LocationURI() string {
	uri := "dnslink://" + s.domain
	if s.subpath != "" {
		uri += "/" + s.subpath
	}
	return uri + "?resolver=" + s.resolver + "&ipfs=" + s.ipfsAPI
}
