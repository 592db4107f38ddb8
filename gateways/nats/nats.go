// Package nats bridges the dispatch engine to a NATS server: miniac topics
// (MQTT-style, '/'-separated, "+"/"#" wildcards) are translated to and from
// NATS subjects ('.'-separated, "*"/">" wildcards) at the gateway boundary,
// so the rest of the application never has to know which transport is in
// use.
package nats

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gboxsw/miniac"
	"github.com/gboxsw/miniac/errors"
	"github.com/gboxsw/miniac/internal/cache"
	"github.com/gboxsw/miniac/internal/retry"
	"github.com/gboxsw/miniac/logging"
)

// Config configures a Gateway's connection to a NATS server.
type Config struct {
	URLs          []string
	ClientName    string
	Username      string
	Password      string
	Token         string
	ConnectRetry  retry.Config
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns a Config suitable for a local development server.
func DefaultConfig() Config {
	return Config{
		URLs:          []string{nats.DefaultURL},
		ConnectRetry:  retry.DefaultConfig(),
		MaxReconnects: -1, // unlimited; the nats.go client handles its own backoff
		ReconnectWait: 2 * time.Second,
	}
}

// Gateway is a miniac.Gateway backed by a NATS connection.
type Gateway struct {
	miniac.BaseGateway

	cfg    Config
	logger *logging.Logger

	ctx  *miniac.GatewayContext
	conn *nats.Conn

	subs           map[string]*nats.Subscription
	translateCache *cache.Cache[string]
}

// New constructs a NATS gateway with cfg. logger may be nil, in which case
// logging.New falls back to slog.Default().
func New(cfg Config, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.New("nats", nil)
	}
	return &Gateway{
		cfg:            cfg,
		logger:         logger,
		subs:           make(map[string]*nats.Subscription),
		translateCache: cache.New[string](),
	}
}

// OnStart implements miniac.Gateway by dialing the configured NATS server,
// retrying the initial connection attempt per cfg.ConnectRetry.
func (g *Gateway) OnStart(ctx *miniac.GatewayContext) error {
	g.ctx = ctx

	opts := []nats.Option{
		nats.MaxReconnects(g.cfg.MaxReconnects),
		nats.ReconnectWait(g.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				g.logger.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			g.logger.Info("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	}
	if g.cfg.ClientName != "" {
		opts = append(opts, nats.Name(g.cfg.ClientName))
	}
	if g.cfg.Username != "" {
		opts = append(opts, nats.UserInfo(g.cfg.Username, g.cfg.Password))
	}
	if g.cfg.Token != "" {
		opts = append(opts, nats.Token(g.cfg.Token))
	}

	url := strings.Join(g.cfg.URLs, ",")
	conn, err := retry.DoWithResult(context.Background(), g.cfg.ConnectRetry, func() (*nats.Conn, error) {
		return nats.Connect(url, opts...)
	})
	if err != nil {
		return errors.WrapFatal(err, "nats.Gateway", "OnStart")
	}
	g.conn = conn
	return nil
}

// OnStop implements miniac.Gateway by draining the connection.
func (g *Gateway) OnStop() {
	if g.conn != nil {
		_ = g.conn.Drain()
	}
}

// IsValidTopicName accepts any topic that contains neither '+' nor '#'; it
// does not check the subject for other characters NATS rejects.
func (g *Gateway) IsValidTopicName(topic string) bool {
	_, err := g.subject(topic)
	return err == nil
}

// OnPublish implements miniac.Gateway by publishing to the translated subject.
func (g *Gateway) OnPublish(msg *miniac.Message) error {
	subject, err := g.subject(msg.Topic())
	if err != nil {
		return errors.WrapInvalid(err, "nats.Gateway", "OnPublish")
	}
	if err := g.conn.Publish(subject, msg.Payload()); err != nil {
		return errors.WrapTransient(err, "nats.Gateway", "OnPublish")
	}
	return nil
}

// OnAddTopicFilter implements miniac.Gateway by subscribing to the
// translated subject pattern and delivering every message NATS hands back
// through ctx.Deliver, on the goroutine the nats.go client dispatches on.
func (g *Gateway) OnAddTopicFilter(filter string) error {
	subject, err := g.subjectFilter(filter)
	if err != nil {
		return errors.WrapInvalid(err, "nats.Gateway", "OnAddTopicFilter")
	}

	sub, err := g.conn.Subscribe(subject, func(m *nats.Msg) {
		topic := g.topic(m.Subject)
		g.ctx.Deliver(miniac.NewMessage(topic, m.Data))
	})
	if err != nil {
		return errors.WrapTransient(err, "nats.Gateway", "OnAddTopicFilter")
	}
	g.subs[filter] = sub
	return nil
}

// OnRemoveTopicFilter implements miniac.Gateway by unsubscribing.
func (g *Gateway) OnRemoveTopicFilter(filter string) {
	sub, ok := g.subs[filter]
	if !ok {
		return
	}
	_ = sub.Unsubscribe()
	delete(g.subs, filter)
}

// subject translates a concrete miniac topic into a NATS subject, memoizing
// the result since the same handful of topics are typically published
// repeatedly.
func (g *Gateway) subject(topic string) (string, error) {
	if strings.ContainsAny(topic, "+#") {
		return "", errors.ErrInvalidTopic
	}
	return g.translateCache.GetOrCompute(topic, func() string {
		return strings.ReplaceAll(topic, "/", ".")
	}), nil
}

// subjectFilter translates a miniac topic filter into a NATS subscription
// subject: "+" becomes "*", a trailing "#" becomes ">".
func (g *Gateway) subjectFilter(filter string) (string, error) {
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch level {
		case "+":
			levels[i] = "*"
		case "#":
			if i != len(levels)-1 {
				return "", errors.ErrInvalidFilter
			}
			levels[i] = ">"
		}
	}
	return strings.Join(levels, "."), nil
}

// topic translates a concrete NATS subject (as delivered on a message, so
// never containing "*" or ">") back into a miniac topic.
func (g *Gateway) topic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}
