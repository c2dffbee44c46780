package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/taldoflemis/pizzeria/cassa/order"
	"github.com/taldoflemis/pizzeria/pacchetto/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// NATSOrderPubSubber stores order events in a JetStream stream and serves
// the live feed from plain subscriptions on the same subjects.
//
// Subjects have the form <subject>.<created|confirmed>.<order id>.
type NATSOrderPubSubber struct {
	nc          *nats.Conn
	js          jetstream.JetStream
	subject     string
	channelSize int

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

var _ OrderPubSubber = (*NATSOrderPubSubber)(nil)

func NewNATSOrderPubSubber(
	ctx context.Context,
	nc *nats.Conn,
	subject, stream string,
	channelSize int,
) (*NATSOrderPubSubber, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, errors.Wrap(err, "create jetstream context")
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{subject + ".>"},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create stream %s", stream)
	}

	return &NATSOrderPubSubber{
		nc:          nc,
		js:          js,
		subject:     subject,
		channelSize: channelSize,
		subs:        make(map[string]*nats.Subscription),
	}, nil
}

func (n *NATSOrderPubSubber) subjectFor(event OrderEvent) string {
	// order.created -> orders.created.42
	kind := event.Type[len("order."):]
	return fmt.Sprintf("%s.%s.%d", n.subject, kind, event.Order.ID)
}

// PubOrder implements OrderPubSubber.
func (n *NATSOrderPubSubber) PubOrder(ctx context.Context, o order.Order) error {
	ctx, span := tracer.Start(ctx, "NATSOrderPubSubber.PubOrder")
	defer span.End()

	event := newOrderEvent(o)
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal order event")
	}

	msg := &nats.Msg{
		Subject: n.subjectFor(event),
		Data:    data,
	}
	telemetry.InjectContextToNatsMsg(ctx, msg)
	span.SetAttributes(
		attribute.String("messaging.destination.name", msg.Subject),
		attribute.String("messaging.message.id", event.ID),
	)

	ack, err := n.js.PublishMsg(ctx, msg, jetstream.WithMsgID(event.ID))
	if err != nil {
		span.SetStatus(codes.Error, "failed to publish order event")
		span.RecordError(err)
		return errors.Wrapf(err, "publish %s", msg.Subject)
	}

	slog.InfoContext(ctx, "published order event",
		slog.Int64("order_id", o.ID),
		slog.String("subject", msg.Subject),
		slog.Uint64("seq", ack.Sequence),
	)
	return nil
}

// SubLiveOrders implements OrderPubSubber.
func (n *NATSOrderPubSubber) SubLiveOrders(ctx context.Context, subscriberID string) (<-chan OrderEvent, error) {
	ctx, span := tracer.Start(ctx, "NATSOrderPubSubber.SubLiveOrders")
	defer span.End()

	orderCh := make(chan OrderEvent, n.channelSize)
	sub, err := n.nc.Subscribe(n.subject+".>", func(msg *nats.Msg) {
		msgCtx := telemetry.GetContextFromNatsMsg(context.Background(), msg)

		var event OrderEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.ErrorContext(msgCtx, "failed to unmarshal order event from NATS message", slog.Any("err", err))
			return
		}

		select {
		case orderCh <- event:
		default:
			slog.WarnContext(msgCtx, "live order subscriber is lagging, dropping event",
				slog.String("subscriber_id", subscriberID),
				slog.String("event_id", event.ID),
			)
		}
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to subscribe to NATS subject", slog.String("subject", n.subject), slog.Any("err", err))
		span.SetStatus(codes.Error, "failed to subscribe to NATS subject")
		span.RecordError(err)
		return nil, errors.Wrap(err, "subscribe live orders")
	}

	n.mu.Lock()
	if old, ok := n.subs[subscriberID]; ok {
		_ = old.Unsubscribe()
	}
	n.subs[subscriberID] = sub
	n.mu.Unlock()

	return orderCh, nil
}

// UnsubLiveOrders implements OrderPubSubber. The channel is left open since
// an in-flight callback may still be delivering to it.
func (n *NATSOrderPubSubber) UnsubLiveOrders(ctx context.Context, subscriberID string) error {
	ctx, span := tracer.Start(ctx, "NATSOrderPubSubber.UnsubLiveOrders")
	defer span.End()

	slog.InfoContext(ctx, "unsubscribing from live orders", slog.String("subscriber_id", subscriberID))

	n.mu.Lock()
	sub, ok := n.subs[subscriberID]
	delete(n.subs, subscriberID)
	n.mu.Unlock()

	if !ok {
		slog.WarnContext(ctx, "no subscription found for subscriber", slog.String("subscriber_id", subscriberID))
		return nil
	}

	return sub.Unsubscribe()
}
