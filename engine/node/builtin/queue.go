package builtin

import (
	"context"
	"fmt"

	"github.com/theoneeye/oneeye/engine/node"
)

// Registry tags of the queue endpoints
const (
	QueueReaderIdentifier = "queue-trigger"
	QueueWriterIdentifier = "queue-writer"
)

// QueueReader is a producer that pops payloads from a durable queue.
// Popping a CompletionSentinel returns it unchanged so the loop runner
// can drain the subgraph.
type QueueReader struct {
	node.Base
	deps *Deps
}

// NewQueueReader creates a queue reader producer
func NewQueueReader(cfg *node.Config, deps *Deps) *QueueReader {
	return &QueueReader{
		Base: node.NewBase(cfg, QueueReaderIdentifier, node.VariantProducer, node.PoolCooperative),
		deps: deps,
	}
}

// ReadsQueue marks this node for the queue namer
func (n *QueueReader) ReadsQueue() bool { return true }

func (n *QueueReader) queueName() (string, error) {
	if name := n.ConfigString("queue"); name != "" {
		return name, nil
	}
	if name := n.FormString("queue"); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("node %s has no queue assigned", n.Config().ID)
}

// Execute blocks until a message arrives on the queue
func (n *QueueReader) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	name, err := n.queueName()
	if err != nil {
		return nil, err
	}

	for {
		payload, err := n.deps.Queues.Pop(ctx, name, n.deps.popTimeout())
		if err != nil {
			return nil, fmt.Errorf("pop from queue %s: %w", name, err)
		}
		if payload == nil {
			// timeout, keep waiting
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		msg, err := node.Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("decode message from queue %s: %w", name, err)
		}
		if msg.Completed() {
			return msg, nil
		}

		out := msg.Derive(n.Config().ID, "queue_pop")
		return out, nil
	}
}

// QueueWriter forwards its input onto a durable queue. Its cleanup hook
// pushes a CompletionSentinel so downstream loops drain.
type QueueWriter struct {
	node.Base
	deps *Deps
}

// NewQueueWriter creates a queue writer
func NewQueueWriter(cfg *node.Config, deps *Deps) *QueueWriter {
	return &QueueWriter{
		Base: node.NewBase(cfg, QueueWriterIdentifier, node.VariantBlocking, node.PoolCooperative),
		deps: deps,
	}
}

// WritesQueue marks this node for the queue namer
func (n *QueueWriter) WritesQueue() bool { return true }

func (n *QueueWriter) queueName() (string, error) {
	if name := n.ConfigString("queue"); name != "" {
		return name, nil
	}
	if name := n.FormString("queue"); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("node %s has no queue assigned", n.Config().ID)
}

// Execute pushes the accreted payload onto the queue
func (n *QueueWriter) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	name, err := n.queueName()
	if err != nil {
		return nil, err
	}

	out := input.Derive(n.Config().ID, "queue_push")
	if err := n.deps.Queues.Push(ctx, name, out); err != nil {
		return nil, fmt.Errorf("push to queue %s: %w", name, err)
	}
	return out, nil
}

// Cleanup pushes a CompletionSentinel onto the queue so the reading
// loop drains and exits.
func (n *QueueWriter) Cleanup(ctx context.Context, input *node.Output) error {
	name, err := n.queueName()
	if err != nil {
		return err
	}

	sentinel := input
	if !sentinel.Completed() {
		sentinel = node.NewSentinel(n.Config().ID)
	}
	if err := n.deps.Queues.Push(ctx, name, sentinel); err != nil {
		return fmt.Errorf("push sentinel to queue %s: %w", name, err)
	}
	return nil
}
