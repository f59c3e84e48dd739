package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/recordstack/entitystore/common/logger"
	"github.com/recordstack/entitystore/common/redis"
	"github.com/recordstack/entitystore/pkg/entity"
)

// DefaultChannel is the pub/sub channel entity change events go out on
const DefaultChannel = "entity.changes"

// Event is the wire form of a change notification
type Event struct {
	Account  string `json:"account"`
	ObjType  string `json:"obj_type"`
	EntityID string `json:"entity_id"`
	Event    string `json:"event"`
	Name     string `json:"name,omitempty"`
	Ts       int64  `json:"ts"`
}

// Notifier publishes change notifications on a Redis channel.
// Fire-and-forget: publish failures are logged, never surfaced to the
// save path.
type Notifier struct {
	client  *redis.Client
	channel string
	account string
	log     *logger.Logger
}

// New creates a notifier for one account
func New(client *redis.Client, channel, account string, log *logger.Logger) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{
		client:  client,
		channel: channel,
		account: account,
		log:     log,
	}
}

// Send publishes one change event
func (n *Notifier) Send(ctx context.Context, ent *entity.Entity, event string) {
	payload, err := json.Marshal(Event{
		Account:  n.account,
		ObjType:  ent.ObjType(),
		EntityID: ent.EntityID(),
		Event:    event,
		Name:     ent.GetName(""),
		Ts:       time.Now().Unix(),
	})
	if err != nil {
		n.log.Warn("failed to serialize change event",
			"obj_type", ent.ObjType(), "entity_id", ent.EntityID(), "error", err)
		return
	}

	if err := n.client.PublishEvent(ctx, n.channel, string(payload)); err != nil {
		n.log.Warn("failed to publish change event",
			"obj_type", ent.ObjType(), "entity_id", ent.EntityID(), "error", err)
	}
}
