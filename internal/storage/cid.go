package storage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ipfs/go-cid"
)

const (
	legacyScheme         = "filecoin://"
	DefaultGatewayDomain = "filbeam.io"
	DefaultNetwork       = "calibration"
)

// ExtractContentID recovers the piece identifier from a stored reference.
// Scheme URLs lose their prefix, gateway URLs yield their last path segment
// (unescaped, without query), anything else is returned unchanged. A gateway
// URL ending in "/" has no identifier and yields "".
func ExtractContentID(ref, gatewayDomain string) string {
	if strings.HasPrefix(ref, legacyScheme) {
		return strings.TrimPrefix(ref, legacyScheme)
	}
	if gatewayDomain == "" {
		gatewayDomain = DefaultGatewayDomain
	}
	if !strings.Contains(ref, "."+gatewayDomain+"/") {
		return ref
	}
	path := ref
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segment := path[strings.LastIndex(path, "/")+1:]
	if id, err := url.PathUnescape(segment); err == nil {
		return id
	}
	return segment
}

// BuildGatewayURL builds the CDN URL for a piece held by the storage service.
// An empty id has no URL.
func BuildGatewayURL(serviceAddress, network, gatewayDomain, contentID string) string {
	if contentID == "" {
		return ""
	}
	if network == "" {
		network = DefaultNetwork
	}
	if gatewayDomain == "" {
		gatewayDomain = DefaultGatewayDomain
	}
	return fmt.Sprintf("https://%s.%s.%s/%s",
		strings.ToLower(serviceAddress), strings.ToLower(network), gatewayDomain, url.PathEscape(contentID))
}

// ValidateContentID checks that id parses as a CID.
func ValidateContentID(id string) error {
	if _, err := cid.Decode(id); err != nil {
		return fmt.Errorf("invalid content id %q: %w", id, err)
	}
	return nil
}
