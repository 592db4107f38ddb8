// Package echo provides an in-process loopback gateway: every message
// published through it is delivered straight back to local subscribers,
// with no external transport involved. It is useful for tests, demos, and
// as the gateway backing the "$MAILBOX"-style reply-topic pattern when no
// real broker is configured.
package echo

import "github.com/gboxsw/miniac"

// Gateway is a miniac.Gateway that loops every published message back to
// local subscribers.
type Gateway struct {
	miniac.BaseGateway
	ctx *miniac.GatewayContext
}

// New constructs an echo Gateway.
func New() *Gateway { return &Gateway{} }

// OnStart implements miniac.Gateway.
func (g *Gateway) OnStart(ctx *miniac.GatewayContext) error {
	g.ctx = ctx
	return nil
}

// OnPublish implements miniac.Gateway by delivering msg straight back.
func (g *Gateway) OnPublish(msg *miniac.Message) error {
	g.ctx.Deliver(msg)
	return nil
}
