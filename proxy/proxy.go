// Package proxy implements the dials forwarding proxy: a local HTTP
// intermediary that forces configured sampling parameters (temperature,
// top_p, top_k) into chat-completion request bodies and otherwise relays
// traffic to the upstream API untouched, streamed responses included.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/dials/pkg/sse"
	"github.com/papercomputeco/dials/proxy/audit"
	"github.com/papercomputeco/dials/proxy/header"
)

// messagesPathMarker identifies chat-completion endpoints; only their bodies
// are candidates for sampling-parameter injection.
const messagesPathMarker = "/messages"

// errorResponse is the JSON body returned for proxy-originated errors.
type errorResponse struct {
	Error string `json:"error"`
}

// Proxy is the transparent forwarding proxy. Its resolved sampling overrides
// are fixed at construction and shared read-only by every request handler,
// so concurrent requests need no synchronization.
type Proxy struct {
	config     Config
	logger     *zap.Logger
	httpClient *http.Client
	server     *fiber.App
	auditPool  *audit.Pool

	// relays tracks in-flight streaming relay goroutines so Close can wait
	// for them before tearing down the audit pool.
	relays sync.WaitGroup
}

// New creates a new Proxy. The configured overrides are validated here so an
// out-of-domain value aborts startup instead of reaching the upstream API.
func New(config Config, logger *zap.Logger) (*Proxy, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	config.UpstreamURL = strings.TrimRight(config.UpstreamURL, "/")

	if err := config.Overrides.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampling overrides: %w", err)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	pool, err := audit.NewPool(&audit.Config{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create audit pool: %w", err)
	}

	p := &Proxy{
		config:    config,
		logger:    logger,
		server:    app,
		auditPool: pool,
		httpClient: &http.Client{
			// Chat-completion requests can be slow, especially with
			// thinking blocks
			Timeout: 5 * time.Minute,
		},
	}

	// Register transparent proxy route - forwards any path to upstream
	app.All("/*", p.handleProxy)

	return p, nil
}

// Run starts the proxy server on the configured listening address.
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream", p.config.UpstreamURL),
		zap.String("overrides", p.config.Overrides.String()),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", p.config.UpstreamURL),
		zap.String("overrides", p.config.Overrides.String()),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the proxy and drains the audit pool. Streaming
// relay goroutines can outlive the server shutdown (the client may have seen
// EOF already), so Close waits for them before closing the pool's queue.
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.relays.Wait()
	p.auditPool.Close()
	return err
}

// handleProxy relays one inbound request to the upstream API, mutating
// chat-completion bodies per the resolved overrides. All failures are
// contained to this request; the listener keeps serving.
func (p *Proxy) handleProxy(c *fiber.Ctx) error {
	startTime := time.Now()
	requestID := uuid.NewString()
	log := p.logger.With(zap.String("request_id", requestID))

	if c.Method() == fiber.MethodOptions {
		return p.handlePreflight(c)
	}

	method := c.Method()
	// OriginalURL carries path and query string, both forwarded unchanged.
	target := c.OriginalURL()

	body := c.Body()
	outBody := body
	var injected []string
	if len(body) > 0 && strings.Contains(c.Path(), messagesPathMarker) {
		outBody, injected = injectSamplingParams(log, body, p.config.Overrides)
	}

	var reqBody io.Reader
	if len(outBody) > 0 {
		reqBody = bytes.NewReader(outBody)
	}

	// The upstream request uses context.Background() rather than c.Context()
	// because fasthttp recycles its RequestCtx once the handler returns,
	// while the streaming relay keeps reading the upstream body from a
	// separate goroutine. Client disconnects still tear the relay down: the
	// pipe write fails and the deferred body close aborts the upstream
	// connection.
	httpReq, err := http.NewRequestWithContext(context.Background(), method, p.config.UpstreamURL+target, reqBody)
	if err != nil {
		log.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal error"})
	}

	header.CopyToUpstream(c, httpReq)

	log.Debug("forwarding request to upstream",
		zap.String("method", method),
		zap.String("target", target),
		zap.Strings("injected", injected),
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		log.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{
			Error: fmt.Sprintf("upstream request failed: %v", err),
		})
	}

	header.CopyToClient(c, httpResp)
	c.Status(httpResp.StatusCode)

	rec := audit.Record{
		RequestID: requestID,
		Method:    method,
		Path:      c.Path(),
		Status:    httpResp.StatusCode,
		Injected:  injected,
	}

	if isEventStream(httpResp) {
		rec.Streaming = true

		// io.Pipe gives direct backpressure: pw.Write blocks until
		// fasthttp's chunked writer consumes and flushes to the socket, so
		// each upstream event reaches the client as it arrives instead of
		// buffering in memory.
		pr, pw := io.Pipe()
		p.relays.Add(1)
		go p.relayEventStream(log, httpResp, pw, rec, startTime)

		// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
		c.Context().Response.SetBodyStream(pr, -1)

		return nil
	}

	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		log.Error("failed to read upstream response", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "failed to read upstream response"})
	}

	rec.Duration = time.Since(startTime)
	p.auditPool.Enqueue(rec)

	return c.Send(respBody)
}

// relayEventStream copies an SSE upstream body to the pipe writer chunk by
// chunk, parsing events along the way for debug telemetry. Runs on its own
// goroutine; the handler has already returned.
func (p *Proxy) relayEventStream(log *zap.Logger, httpResp *http.Response, pw *io.PipeWriter, rec audit.Record, startTime time.Time) {
	defer p.relays.Done()
	defer httpResp.Body.Close()

	scanner := sse.NewScanner(httpResp.Body, pw)
	events := 0

	for {
		ev, err := scanner.Next()
		if err != nil {
			// Read errors come from upstream; write errors mean the client
			// went away. Either way the relay is over and both connections
			// are released.
			log.Error("error relaying event stream", zap.Error(err))
			pw.CloseWithError(err)
			return
		}
		if ev == nil {
			break
		}

		// Non-data sentinels like OpenAI's "[DONE]" are forwarded by the
		// scanner but not counted as events.
		if ev.Data == "[DONE]" {
			continue
		}

		events++
		log.Debug("relayed stream event", zap.String("event_type", ev.Type))
	}

	// Enqueue before closing the pipe: once the client sees EOF the proxy
	// may be shut down, and the audit pool must already hold the record.
	rec.Duration = time.Since(startTime)
	p.auditPool.Enqueue(rec)

	pw.Close()

	log.Debug("stream complete",
		zap.Int("events", events),
		zap.Duration("duration", rec.Duration),
	)
}

// handlePreflight answers CORS preflight requests locally; browsers probing
// the local proxy should not leak OPTIONS traffic upstream.
func (p *Proxy) handlePreflight(c *fiber.Ctx) error {
	c.Set("Access-Control-Allow-Origin", "*")
	c.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Set("Access-Control-Allow-Headers", "*")
	return c.SendStatus(fiber.StatusOK)
}

// isEventStream reports whether the upstream response is a server-sent event
// stream and must be relayed incrementally.
func isEventStream(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
}
