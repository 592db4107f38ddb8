package miniac

// DataGateway is a Gateway variant that hosts a set of DataItems under its
// own attachment id, each exposed at the fully-qualified topic
// "<gatewayId>/<localId>". It never routes ordinary pub/sub traffic:
// IsValidTopicName always reports false, so a direct publish into its
// namespace is always rejected. A hosted item's value changes when it
// resynchronizes (after a RequestChange, an Invalidate, or a change of one
// of its dependencies); notifyValueChanged is how that change becomes a
// message any subscriber to the item's fully-qualified topic will see.
type DataGateway struct {
	BaseGateway

	ctx   *GatewayContext
	items []DataItem
}

// NewDataGateway constructs an empty DataGateway. Data items are attached
// to it by AddDataItem, naming this gateway's attachment id.
func NewDataGateway() *DataGateway { return &DataGateway{} }

// OnStart implements Gateway, retaining ctx so notifyValueChanged can
// deliver a change notification through the dispatch engine.
func (g *DataGateway) OnStart(ctx *GatewayContext) error {
	g.ctx = ctx
	return nil
}

// IsValidTopicName implements Gateway by rejecting every topic: a data
// gateway's namespace is populated only by its hosted items, never by an
// ordinary publish.
func (g *DataGateway) IsValidTopicName(string) bool { return false }

// hostItem records item as hosted by this gateway, for save iteration and
// future extension. Called once, by AddDataItem, after activation succeeds.
func (g *DataGateway) hostItem(item DataItem) {
	g.items = append(g.items, item)
}

// hostedItems returns every data item attached to this gateway, in
// attachment order.
func (g *DataGateway) hostedItems() []DataItem { return g.items }

// notifyValueChanged delivers an (empty-payload) message whose topic is
// localID through this gateway, exactly as if it had arrived from the
// transport this gateway fronts. Ordinary filter matching then decides
// whether any subscriber to the item's fully-qualified topic actually
// receives it.
func (g *DataGateway) notifyValueChanged(localID string) {
	if g.ctx == nil {
		return
	}
	g.ctx.Deliver(NewMessage(localID, nil))
}
