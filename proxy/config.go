package proxy

import "github.com/papercomputeco/dials/pkg/sampling"

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "127.0.0.1:8080")
	ListenAddr string

	// UpstreamURL is the upstream API origin requests are forwarded to
	// (e.g., "https://api.anthropic.com"). Scheme and host only; inbound
	// path and query are preserved.
	UpstreamURL string

	// Overrides holds the resolved sampling parameters to force into
	// chat-completion request bodies. Resolved once at startup and never
	// mutated afterwards, so request handlers read it without locking.
	Overrides sampling.Overrides
}
