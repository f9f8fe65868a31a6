// Package header filters the headers relayed on each leg of the proxy:
//
//	Client <--> Proxy <--> Upstream API
//
// Provider auth headers (Authorization, X-Api-Key, anthropic-version, ...)
// pass through verbatim. Hop-by-hop and transport-negotiated headers do not,
// because each leg negotiates connection reuse, compression and framing
// independently.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// skipRequest is the set of inbound request headers never forwarded to the
// upstream API.
var skipRequest = map[string]struct{}{
	// Hop-by-hop: only meaningful for a single transport-level connection.
	"Connection": {},

	// Rewritten by Go's http.Transport to match the upstream URL. The
	// client's Host names the proxy, which would confuse virtual-hosted
	// upstreams.
	"Host": {},

	// Go's http.Transport recomputes this from the (possibly mutated)
	// outbound body.
	"Content-Length": {},

	// Stripped so http.Transport adds its own "Accept-Encoding: gzip" and
	// transparently decompresses the upstream response.
	"Accept-Encoding": {},
}

// skipResponse is the set of upstream response headers never copied back to
// the downstream client.
var skipResponse = map[string]struct{}{
	// Hop-by-hop: only meaningful for a single transport-level connection.
	"Connection": {},

	// fasthttp manages chunked transfer encoding for the client-facing
	// response independently.
	"Transfer-Encoding": {},

	// The proxy reads a decompressed body (http.Transport strips
	// Content-Encoding after auto-decompression), so the upstream value no
	// longer describes the relayed bytes.
	"Content-Encoding": {},

	// The upstream length reflects the possibly-compressed upstream body.
	// fasthttp computes the correct value for the client leg.
	"Content-Length": {},
}

// CopyToUpstream copies inbound request headers from the fiber context onto
// the outgoing upstream http.Request, minus skipRequest. VisitAll yields one
// callback per header line, so Add keeps repeated values (Cookie,
// X-Forwarded-For) intact.
func CopyToUpstream(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, skip := skipRequest[k]; !skip {
			req.Header.Add(k, string(value))
		}
	})
}

// CopyToClient copies upstream response headers onto the fiber context's
// response, minus skipResponse.
func CopyToClient(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[k]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}
