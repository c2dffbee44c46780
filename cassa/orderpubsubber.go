package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taldoflemis/pizzeria/cassa/order"
)

// OrderPubSubber fans order changes out to the live admin feed.
type OrderPubSubber interface {
	order.Publisher
	SubLiveOrders(ctx context.Context, subscriberID string) (<-chan OrderEvent, error)
	UnsubLiveOrders(ctx context.Context, subscriberID string) error
}

func newOrderEvent(o order.Order) OrderEvent {
	return OrderEvent{
		ID:         uuid.NewString(),
		Type:       eventType(o.Status),
		OccurredAt: time.Now().UTC(),
		Order:      newOrderResponse(o),
	}
}

// GoChannelOrderPubSubber keeps subscribers in process. A subscriber whose
// buffer is full misses the event instead of stalling the publisher.
type GoChannelOrderPubSubber struct {
	liveEventSubscribers map[string]chan OrderEvent
	bufferSize           int
	mu                   sync.Mutex
}

var _ OrderPubSubber = (*GoChannelOrderPubSubber)(nil)

func NewGoChannelOrderPubSubber(bufferSize int) *GoChannelOrderPubSubber {
	return &GoChannelOrderPubSubber{
		liveEventSubscribers: make(map[string]chan OrderEvent),
		bufferSize:           bufferSize,
	}
}

// PubOrder implements OrderPubSubber.
func (g *GoChannelOrderPubSubber) PubOrder(ctx context.Context, o order.Order) error {
	ctx, span := tracer.Start(ctx, "GoChannelOrderPubSubber.PubOrder")
	defer span.End()

	event := newOrderEvent(o)
	slog.InfoContext(ctx, "publishing order",
		slog.Int64("order_id", o.ID),
		slog.String("event", event.Type),
	)

	g.mu.Lock()
	defer g.mu.Unlock()

	for id, subChan := range g.liveEventSubscribers {
		select {
		case subChan <- event:
		default:
			slog.WarnContext(ctx, "live order subscriber is lagging, dropping event",
				slog.String("subscriber_id", id),
				slog.String("event_id", event.ID),
			)
		}
	}

	return nil
}

// SubLiveOrders implements OrderPubSubber.
func (g *GoChannelOrderPubSubber) SubLiveOrders(ctx context.Context, subscriberID string) (<-chan OrderEvent, error) {
	ctx, span := tracer.Start(ctx, "GoChannelOrderPubSubber.SubLiveOrders")
	defer span.End()

	slog.InfoContext(ctx, "subscribing to live orders", slog.String("subscriber_id", subscriberID))

	ch := make(chan OrderEvent, g.bufferSize)
	g.mu.Lock()
	if old, ok := g.liveEventSubscribers[subscriberID]; ok {
		close(old)
	}
	g.liveEventSubscribers[subscriberID] = ch
	g.mu.Unlock()
	return ch, nil
}

// UnsubLiveOrders implements OrderPubSubber. The subscriber channel is closed.
func (g *GoChannelOrderPubSubber) UnsubLiveOrders(ctx context.Context, subscriberID string) error {
	ctx, span := tracer.Start(ctx, "GoChannelOrderPubSubber.UnsubLiveOrders")
	defer span.End()

	slog.InfoContext(ctx, "unsubscribing from live orders", slog.String("subscriber_id", subscriberID))

	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.liveEventSubscribers[subscriberID]; ok {
		close(ch)
		delete(g.liveEventSubscribers, subscriberID)
	}
	return nil
}
