package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/papercomputeco/dials/pkg/sampling"
)

// newTestProxy creates a Proxy pointed at the given upstream URL.
func newTestProxy(upstreamURL string, overrides sampling.Overrides) *Proxy {
	p, err := New(
		Config{
			ListenAddr:  ":0",
			UpstreamURL: upstreamURL,
			Overrides:   overrides,
		},
		zap.NewNop(),
	)
	Expect(err).NotTo(HaveOccurred())
	return p
}

// echoUpstream records the last request it received and echoes the request
// body back as the response.
type echoUpstream struct {
	server *httptest.Server

	method string
	path   string
	query  string
	header http.Header
	body   []byte
}

func newEchoUpstream() *echoUpstream {
	e := &echoUpstream{}
	e.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.method = r.Method
		e.path = r.URL.Path
		e.query = r.URL.RawQuery
		e.header = r.Header.Clone()
		e.body, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.Write(e.body)
	}))
	return e
}

var _ = Describe("Forwarding", func() {
	var (
		p        *Proxy
		upstream *echoUpstream
	)

	AfterEach(func() {
		if p != nil {
			p.Close()
			p = nil
		}
		if upstream != nil {
			upstream.server.Close()
			upstream = nil
		}
	})

	Context("with resolved overrides", func() {
		BeforeEach(func() {
			upstream = newEchoUpstream()
			p = newTestProxy(upstream.server.URL, sampling.Overrides{
				Temperature: sampling.Set(0.7),
				TopK:        sampling.Set(40),
			})
		})

		It("injects set parameters into messages request bodies", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/messages",
				strings.NewReader(`{"model":"claude-3","temperature":0.3,"marker":"m-1"}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			sent := string(upstream.body)
			Expect(gjson.Get(sent, "temperature").Float()).To(Equal(0.7))
			Expect(gjson.Get(sent, "top_k").Int()).To(Equal(int64(40)))
			// Unset parameters are never written.
			Expect(gjson.Get(sent, "top_p").Exists()).To(BeFalse())
			// Untouched keys survive byte-for-byte.
			Expect(gjson.Get(sent, "model").String()).To(Equal("claude-3"))
			Expect(gjson.Get(sent, "marker").String()).To(Equal("m-1"))
		})

		It("preserves method, path and query string", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/messages?beta=true",
				strings.NewReader(`{"model":"claude-3"}`))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(upstream.method).To(Equal(http.MethodPost))
			Expect(upstream.path).To(Equal("/v1/messages"))
			Expect(upstream.query).To(Equal("beta=true"))
		})

		It("passes provider auth headers through verbatim", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/messages",
				strings.NewReader(`{"model":"claude-3"}`))
			req.Header.Set("X-Api-Key", "sk-ant-secret")
			req.Header.Set("Anthropic-Version", "2023-06-01")

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(upstream.header.Get("X-Api-Key")).To(Equal("sk-ant-secret"))
			Expect(upstream.header.Get("Anthropic-Version")).To(Equal("2023-06-01"))
		})

		It("recomputes content-length for the mutated body", func() {
			body := `{"model":"claude-3"}`
			req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			// The injected parameters grow the body past the inbound length.
			Expect(len(upstream.body)).To(BeNumerically(">", len(body)))
			Expect(upstream.header.Get("Content-Length")).NotTo(Equal("20"))
		})

		It("forwards unparseable bodies byte-for-byte", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`not json`))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(string(upstream.body)).To(Equal(`not json`))
		})

		It("leaves non-messages endpoints untouched", func() {
			body := `{"model":"claude-3","temperature":0.3}`
			req := httptest.NewRequest(http.MethodPost, "/v1/complete", strings.NewReader(body))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(string(upstream.body)).To(Equal(body))
		})

		It("forwards body-less requests unchanged", func() {
			req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(upstream.method).To(Equal(http.MethodGet))
			Expect(upstream.body).To(BeEmpty())
		})

		It("answers CORS preflight locally", func() {
			req := httptest.NewRequest(http.MethodOptions, "/v1/messages", nil)

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			// The upstream never sees the preflight.
			Expect(upstream.method).To(BeEmpty())
		})
	})

	Context("with no overrides", func() {
		BeforeEach(func() {
			upstream = newEchoUpstream()
			p = newTestProxy(upstream.server.URL, sampling.Overrides{})
		})

		It("relays messages bodies unmodified", func() {
			body := `{"model":"claude-3","temperature":0.3,"messages":[{"role":"user","content":"hi"}]}`
			req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(string(upstream.body)).To(Equal(body))

			echoed, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(echoed)).To(Equal(body))
		})
	})

	Context("when the upstream is unreachable", func() {
		BeforeEach(func() {
			dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			url := dead.URL
			dead.Close()
			p = newTestProxy(url, sampling.Overrides{})
		})

		It("responds 502 with a diagnostic body and keeps serving", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"x"}`))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(gjson.GetBytes(body, "error").String()).To(ContainSubstring("upstream request failed"))

			// The listener survives per-request failures.
			req2 := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
			resp2, err := p.server.Test(req2, -1)
			Expect(err).NotTo(HaveOccurred())
			resp2.Body.Close()
			Expect(resp2.StatusCode).To(Equal(http.StatusBadGateway))
		})
	})

	Context("when the upstream returns an error status", func() {
		var errServer *httptest.Server

		BeforeEach(func() {
			errServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Request-Id", "req_overloaded")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error"}}`))
			}))
			p = newTestProxy(errServer.URL, sampling.Overrides{Temperature: sampling.Set(0.7)})
		})

		AfterEach(func() {
			errServer.Close()
		})

		It("relays status, headers and body unmodified", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"x"}`))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(resp.Header.Get("Request-Id")).To(Equal("req_overloaded"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(gjson.GetBytes(body, "error.type").String()).To(Equal("rate_limit_error"))
		})
	})
})
