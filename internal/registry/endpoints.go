package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	// Public backend endpoints. Quote/search/status are GET, submit is POST.
	BackendBaseURL    = "https://public-backend.bungee.exchange"
	BackendQuotePath  = "/api/v1/bungee/quote"
	BackendSubmitPath = "/api/v1/bungee/submit"
	BackendStatusPath = "/api/v1/bungee/status"
	BackendSearchPath = "/api/v1/tokens/search"
)

// ResolveBackendURL applies a base-url override after validating it. Loopback
// hosts may use plain http so tests and local stubs work; anything else must
// be https.
func ResolveBackendURL(override string) (string, bool) {
	clean := strings.TrimRight(strings.TrimSpace(override), "/")
	if clean == "" {
		return BackendBaseURL, true
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", false
	}
	host := strings.TrimSpace(parsed.Hostname())
	if host == "" {
		return "", false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(host) {
		if scheme == "http" || scheme == "https" {
			return clean, true
		}
		return "", false
	}
	if scheme != "https" {
		return "", false
	}
	return clean, true
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
