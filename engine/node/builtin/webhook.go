package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/theoneeye/oneeye/common/pubsub"
	"github.com/theoneeye/oneeye/engine/node"
)

// WebhookIdentifier is the registry tag of the webhook producer
const WebhookIdentifier = "webhook-trigger"

// WebhookChannel returns the pub/sub channel for a webhook id
func WebhookChannel(webhookID string) string {
	return "webhook:" + webhookID
}

// Webhook is a producer that yields one payload per delivery published
// to webhook:<id>. Deliveries published while no producer is subscribed
// are lost (transient fan-out).
type Webhook struct {
	node.Base
	deps *Deps

	mu  sync.Mutex
	sub pubsub.Subscription
}

// NewWebhook creates a webhook producer
func NewWebhook(cfg *node.Config, deps *Deps) *Webhook {
	return &Webhook{
		Base: node.NewBase(cfg, WebhookIdentifier, node.VariantProducer, node.PoolCooperative, "webhook_id"),
		deps: deps,
	}
}

// Setup opens the dedicated subscription connection
func (n *Webhook) Setup(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sub != nil {
		return nil
	}

	webhookID := n.FormString("webhook_id")
	sub, err := n.deps.PubSub.Subscribe(ctx, WebhookChannel(webhookID))
	if err != nil {
		return fmt.Errorf("subscribe webhook %s: %w", webhookID, err)
	}
	n.sub = sub
	return nil
}

// Execute blocks until the next webhook delivery arrives
func (n *Webhook) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	n.mu.Lock()
	sub := n.sub
	n.mu.Unlock()
	if sub == nil {
		return nil, fmt.Errorf("webhook subscription not set up")
	}

	select {
	case payload, ok := <-sub.Messages():
		if !ok {
			return nil, fmt.Errorf("webhook subscription closed")
		}
		var delivery map[string]any
		if err := json.Unmarshal(payload, &delivery); err != nil {
			return nil, fmt.Errorf("malformed webhook delivery: %w", err)
		}

		webhookID := n.FormString("webhook_id")
		out := input.Derive(n.Config().ID, "webhook")
		out.Data["webhook"] = map[string]any{
			"webhook_id": webhookID,
			"data":       delivery,
		}
		return out, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cleanup closes the subscription
func (n *Webhook) Cleanup(ctx context.Context, input *node.Output) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sub == nil {
		return nil
	}
	err := n.sub.Close()
	n.sub = nil
	return err
}
