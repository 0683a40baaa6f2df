package builtin

import (
	"net/http"
	"time"

	"github.com/theoneeye/oneeye/common/pubsub"
	"github.com/theoneeye/oneeye/common/queue"
	"github.com/theoneeye/oneeye/engine/condition"
	"github.com/theoneeye/oneeye/engine/node"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Deps carries the collaborators the builtin nodes need. Factories are
// closures over it, so stores stay constructor-injected rather than
// global.
type Deps struct {
	Queues     queue.Store
	PubSub     pubsub.Store
	Evaluator  *condition.Evaluator
	Logger     Logger
	PopTimeout time.Duration
	HTTPClient *http.Client
}

func (d *Deps) popTimeout() time.Duration {
	if d.PopTimeout <= 0 {
		return 5 * time.Second
	}
	return d.PopTimeout
}

func (d *Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Register binds every builtin node type into the registry
func Register(reg *node.Registry, deps *Deps) {
	reg.Register(IntervalIdentifier, func(cfg *node.Config) (node.Node, error) {
		return NewInterval(cfg), nil
	})
	reg.Register(WebhookIdentifier, func(cfg *node.Config) (node.Node, error) {
		return NewWebhook(cfg, deps), nil
	})
	reg.Register(QueueReaderIdentifier, func(cfg *node.Config) (node.Node, error) {
		return NewQueueReader(cfg, deps), nil
	})
	reg.Register(QueueWriterIdentifier, func(cfg *node.Config) (node.Node, error) {
		return NewQueueWriter(cfg, deps), nil
	})
	reg.Register(ConditionIdentifier, func(cfg *node.Config) (node.Node, error) {
		return NewCondition(cfg, deps), nil
	})
	reg.Register(SetDataIdentifier, func(cfg *node.Config) (node.Node, error) {
		return NewSetData(cfg), nil
	})
	reg.Register(HTTPRequestIdentifier, func(cfg *node.Config) (node.Node, error) {
		return NewHTTPRequest(cfg, deps), nil
	})
	reg.Register(LogOutputIdentifier, func(cfg *node.Config) (node.Node, error) {
		return NewLogOutput(cfg, deps), nil
	})
	reg.Register(RespondIdentifier, func(cfg *node.Config) (node.Node, error) {
		return NewRespond(cfg), nil
	})
}
