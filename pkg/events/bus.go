package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// SessionBus fans session snapshots out to the views that watch them.
// Delivery order across publishes is not guaranteed; consumers compare revisions.
type SessionBus struct {
	pubSub *gochannel.GoChannel
}

func NewSessionBus(logger watermill.LoggerAdapter) *SessionBus {
	return &SessionBus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 16},
			logger,
		),
	}
}

func sessionTopic(viewID string) string {
	return "session." + viewID
}

func (b *SessionBus) Publish(viewID string, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubSub.Publish(sessionTopic(viewID), msg); err != nil {
		return fmt.Errorf("failed to publish snapshot for view %s: %w", viewID, err)
	}
	return nil
}

// Subscribe streams payloads published for viewID until ctx is done.
func (b *SessionBus) Subscribe(ctx context.Context, viewID string) (<-chan []byte, error) {
	msgs, err := b.pubSub.Subscribe(ctx, sessionTopic(viewID))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to view %s: %w", viewID, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			select {
			case out <- msg.Payload:
				msg.Ack()
			case <-ctx.Done():
				msg.Ack()
				return
			}
		}
	}()

	return out, nil
}

func (b *SessionBus) Close() error {
	return b.pubSub.Close()
}
