package notify

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

// PubNubPublisher publishes messages on a per-event channel.
type PubNubPublisher struct {
	pn *pubnub.PubNub
}

// NewPubNubPublisher configures a PubNub client for publishing only.
func NewPubNubPublisher(publishKey, subscribeKey, userID string) *PubNubPublisher {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey

	return &PubNubPublisher{pn: pubnub.NewPubNub(cfg)}
}

// Channel returns the channel name for an event.
func Channel(eventID string) string {
	return fmt.Sprintf("event-%s", eventID)
}

// Publish sends msg to the event's channel.
func (p *PubNubPublisher) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.pn.Publish().
		Channel(Channel(msg.EventID)).
		Message(msg).
		Execute()
	if err != nil {
		return fmt.Errorf("pubnub publish: %w", err)
	}
	return nil
}
