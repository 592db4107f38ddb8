// Package httppoll bridges the dispatch engine to HTTP endpoints that must
// be polled rather than pushed to: each configured endpoint is fetched on
// its own fixed interval by a shared, bounded pool of workers, and every
// response is fed back to the dispatch thread as a message on that
// endpoint's topic.
package httppoll

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gboxsw/miniac"
	"github.com/gboxsw/miniac/errors"
	"github.com/gboxsw/miniac/internal/worker"
	"github.com/gboxsw/miniac/logging"
)

// Endpoint describes one HTTP resource to poll.
type Endpoint struct {
	Topic    string
	URL      string
	Interval time.Duration
	Headers  map[string]string
}

// Config configures a Gateway.
type Config struct {
	Endpoints []Endpoint
	Client    *http.Client
	Workers   int
}

// Gateway is a miniac.Gateway that polls a fixed set of HTTP endpoints and
// republishes each response body as a message on the endpoint's topic.
// Outbound publishes through it are rejected: it is a source-only gateway.
type Gateway struct {
	miniac.BaseGateway

	cfg    Config
	client *http.Client
	logger *logging.Logger

	ctx    *miniac.GatewayContext
	pool   *worker.Pool[Endpoint]
	timers []miniac.Cancellable
}

// New constructs an httppoll Gateway. logger may be nil.
func New(cfg Config, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.New("httppoll", nil)
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Gateway{cfg: cfg, client: cfg.Client, logger: logger}
}

// OnStart implements miniac.Gateway by starting the poll worker pool and
// scheduling each endpoint's first fetch.
func (g *Gateway) OnStart(ctx *miniac.GatewayContext) error {
	g.ctx = ctx

	g.pool = worker.NewPool(g.cfg.Workers, len(g.cfg.Endpoints)+1, g.fetch)
	if err := g.pool.Start(context.Background()); err != nil {
		return errors.WrapFatal(err, "httppoll.Gateway", "OnStart")
	}

	for _, ep := range g.cfg.Endpoints {
		ep := ep
		cancel := ctx.Schedule(0, func() { g.scheduleFetch(ep) })
		g.timers = append(g.timers, cancel)
	}
	return nil
}

// scheduleFetch submits ep for a fetch and reschedules itself for the next interval.
func (g *Gateway) scheduleFetch(ep Endpoint) {
	if err := g.pool.Submit(ep); err != nil {
		g.logger.Warn("dropped poll tick, worker queue full", "topic", ep.Topic, "error", err)
	}
	cancel := g.ctx.Schedule(ep.Interval, func() { g.scheduleFetch(ep) })
	g.timers = append(g.timers, cancel)
}

// fetch runs on a worker goroutine and hands its result back to the
// dispatch thread via ctx.Deliver, which is safe to call from any goroutine.
func (g *Gateway) fetch(ctx context.Context, ep Endpoint) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return err
	}
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("poll request failed", "topic", ep.Topic, "error", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		g.logger.Warn("failed to read poll response", "topic", ep.Topic, "error", err)
		return nil
	}

	g.ctx.Deliver(miniac.NewMessage(ep.Topic, body))
	return nil
}

// OnStop implements miniac.Gateway by cancelling every pending poll timer
// and draining the worker pool.
func (g *Gateway) OnStop() {
	for _, c := range g.timers {
		c.Cancel()
	}
	if g.pool != nil {
		_ = g.pool.Stop(5 * time.Second)
	}
}

// OnPublish implements miniac.Gateway by rejecting every outbound message;
// this gateway only ever originates messages from polled endpoints.
func (g *Gateway) OnPublish(msg *miniac.Message) error {
	return errors.WrapInvalid(errors.ErrInvalidTopic, "httppoll.Gateway", "OnPublish")
}
