package config

// Listener and upstream defaults used by the CLI flags.
const (
	// DefaultHost is the loopback-only default bind address.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the default proxy listen port.
	DefaultPort = 8080

	// DefaultUpstream is the upstream API origin requests are forwarded to.
	DefaultUpstream = "https://api.anthropic.com"
)
