package miniac

import "strings"

// SystemGatewayID is the reserved ID of the gateway that owns the "$SYS/#"
// namespace. Every Application attaches it automatically.
const SystemGatewayID = "$SYS"

// System topics, all under the "$SYS/" prefix. TopicSystemStart is emitted
// once on startup and TopicSystemStateSaved once after each save, both with
// an empty payload. TopicSystemExit and TopicSystemSave are accepted
// publishes: the former requests an orderly exit, the latter an immediate
// state save.
const (
	TopicSystemStart      = "$SYS/start"
	TopicSystemStateSaved = "$SYS/state-saved"
	TopicSystemExit       = "$SYS/exit"
	TopicSystemSave       = "$SYS/save"
)

// systemGateway owns the "$SYS/#" namespace. It accepts exactly two publish
// commands, exit and save (case-insensitive), and otherwise does not route
// messages anywhere; its presence as a gateway is what lets Subscribe and
// Publish against "$SYS/#" behave like calls against any other attached
// gateway rather than being silently unrouted. IsValidTopicName is left at
// BaseGateway's accept-everything default: Application already guarantees
// OnPublish only ever sees topics whose gateway head is "$SYS".
type systemGateway struct {
	BaseGateway
	ctx *GatewayContext
}

func newSystemGateway() *systemGateway { return &systemGateway{} }

// OnStart implements Gateway, retaining ctx so a later OnPublish can reach
// back into the application to request exit or save.
func (g *systemGateway) OnStart(ctx *GatewayContext) error {
	g.ctx = ctx
	return nil
}

// OnPublish implements Gateway, recognizing "exit" and "save" and ignoring
// every other "$SYS/" topic.
func (g *systemGateway) OnPublish(msg *Message) error {
	switch strings.ToLower(msg.Topic()) {
	case "exit":
		g.ctx.RequestExit()
	case "save":
		g.ctx.RequestSave()
	}
	return nil
}
