package miniac

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// MailboxGatewayID is the reserved ID of the gateway that owns the
// "$MAILBOX/#" namespace. Every Application attaches it automatically.
const MailboxGatewayID = "$MAILBOX"

// mailboxGateway owns the "$MAILBOX/#" namespace, used for ephemeral,
// single-recipient reply topics: a component that needs a private channel
// for exactly one response reserves a topic nobody else is using,
// subscribes to it, publishes a request elsewhere naming that topic as the
// reply address, and cancels the subscription once it has a reply or gives
// up waiting.
type mailboxGateway struct {
	BaseGateway
	ctx     *GatewayContext
	counter uint64
}

func newMailboxGateway() *mailboxGateway { return &mailboxGateway{} }

// OnStart implements Gateway, retaining ctx so OnPublish can deliver
// messages straight back to whoever is waiting on the reply topic.
func (g *mailboxGateway) OnStart(ctx *GatewayContext) error {
	g.ctx = ctx
	return nil
}

// IsValidTopicName accepts only single-level topics of the form "mb-...",
// the localized shape every reserved mailbox topic has.
func (mailboxGateway) IsValidTopicName(topic string) bool {
	return strings.HasPrefix(topic, "mb-") && !strings.Contains(topic, "/")
}

// OnPublish implements Gateway by delivering msg straight back to local
// subscribers: a mailbox reply has exactly one recipient, already
// subscribed to the reserved topic before the request went out.
func (g *mailboxGateway) OnPublish(msg *Message) error {
	g.ctx.Deliver(msg)
	return nil
}

// reserve returns a topic under the "$MAILBOX/" namespace guaranteed unique
// for the lifetime of this gateway instance.
func (g *mailboxGateway) reserve() string {
	id := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s/mb-%x", MailboxGatewayID, id)
}

// ReserveMailboxTopic returns a fresh "$MAILBOX/..." topic for a
// single-recipient reply channel. Safe to call from any goroutine.
func (app *Application) ReserveMailboxTopic() string {
	reg, ok := app.gateways[MailboxGatewayID]
	if !ok {
		return ""
	}
	return reg.gateway.(*mailboxGateway).reserve()
}
