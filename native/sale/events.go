package sale

import (
	"curvesale/core/events"
	"curvesale/core/types"
)

const (
	// EventTypePurchase is emitted for every committed purchase.
	EventTypePurchase = "sale.purchase"
	// EventTypeFinalized is emitted once the sale closes and the
	// distribution has fully committed.
	EventTypeFinalized = "sale.finalized"
	// EventTypeLiquidityAdded is emitted after the AMM hand-off.
	EventTypeLiquidityAdded = "sale.liquidity_added"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// PurchaseEvent returns the structured payload for a committed purchase.
func PurchaseEvent(buyer string, assetAmount string, tokenAmount string, price string) *types.Event {
	return &types.Event{
		Type: EventTypePurchase,
		Attributes: map[string]string{
			"buyer":       buyer,
			"assetAmount": assetAmount,
			"tokenAmount": tokenAmount,
			"price":       price,
		},
	}
}

// FinalizedEvent returns the structured payload for sale completion.
func FinalizedEvent(tokensSold string, assetRaised string) *types.Event {
	return &types.Event{
		Type: EventTypeFinalized,
		Attributes: map[string]string{
			"tokensSold":  tokensSold,
			"assetRaised": assetRaised,
		},
	}
}

// LiquidityAddedEvent returns the structured payload for the AMM hand-off.
func LiquidityAddedEvent(pair string, tokensUsed string, assetUsed string, liquidity string) *types.Event {
	return &types.Event{
		Type: EventTypeLiquidityAdded,
		Attributes: map[string]string{
			"pair":       pair,
			"tokensUsed": tokensUsed,
			"assetUsed":  assetUsed,
			"liquidity":  liquidity,
		},
	}
}
