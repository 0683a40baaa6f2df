package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoneeye/oneeye/common/pubsub"
	"github.com/theoneeye/oneeye/common/queue"
	redisWrapper "github.com/theoneeye/oneeye/common/redis"
	"github.com/theoneeye/oneeye/engine/condition"
	"github.com/theoneeye/oneeye/engine/node"
)

type testLogger struct{ t *testing.T }

func (l *testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *testLogger) Error(msg string, keysAndValues ...interface{}) { l.t.Logf("[ERROR] %s %v", msg, keysAndValues) }
func (l *testLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (l *testLogger) Debug(msg string, keysAndValues ...interface{}) {}

func testDeps(t *testing.T) *Deps {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	wrapped := redisWrapper.NewClient(client, &testLogger{t: t})
	return &Deps{
		Queues:     queue.NewRedisStore(wrapped),
		PubSub:     pubsub.NewRedisStore(wrapped),
		Evaluator:  condition.NewEvaluator(),
		Logger:     &testLogger{t: t},
		PopTimeout: 100 * time.Millisecond,
	}
}

func cfg(id string, form map[string]any) *node.Config {
	return &node.Config{
		ID:   id,
		Type: "test",
		Data: node.ConfigData{Form: form},
	}
}

func TestRegisterBindsAllIdentifiers(t *testing.T) {
	reg := node.NewRegistry()
	Register(reg, testDeps(t))

	assert.ElementsMatch(t, []string{
		IntervalIdentifier,
		WebhookIdentifier,
		QueueReaderIdentifier,
		QueueWriterIdentifier,
		ConditionIdentifier,
		SetDataIdentifier,
		HTTPRequestIdentifier,
		LogOutputIdentifier,
		RespondIdentifier,
	}, reg.Known())
}

func TestConditionSelectsBranch(t *testing.T) {
	deps := testDeps(t)
	n := NewCondition(cfg("c", map[string]any{"condition": "data.x > 3"}), deps)

	in := node.NewOutput("p")
	in.Data["x"] = 5

	out, err := node.Run(context.Background(), n, in)
	require.NoError(t, err)
	assert.Equal(t, node.BranchYes, n.SelectedBranch())
	assert.True(t, n.LastResult())
	assert.Equal(t, node.BranchYes, out.Route())
	assert.Equal(t, []string{"yes"}, n.BranchesToFollow(out, []string{"yes", "no"}))

	in.Data["x"] = 1
	out, err = node.Run(context.Background(), n, in)
	require.NoError(t, err)
	assert.Equal(t, node.BranchNo, n.SelectedBranch())
	assert.Equal(t, []string{"no"}, n.BranchesToFollow(out, []string{"yes", "no"}))
}

func TestConditionUnsetFollowsNothing(t *testing.T) {
	deps := testDeps(t)
	n := NewCondition(cfg("c", map[string]any{"condition": "data.x > 3"}), deps)

	assert.Nil(t, n.BranchesToFollow(node.NewOutput("p"), []string{"yes", "no"}))
}

func TestConditionBroadcastsOnSentinel(t *testing.T) {
	deps := testDeps(t)
	n := NewCondition(cfg("c", map[string]any{"condition": "data.x > 3"}), deps)

	available := []string{"yes", "no"}
	assert.Equal(t, available, n.BranchesToFollow(node.NewSentinel("p"), available))
}

func TestQueueWriterRoundTrip(t *testing.T) {
	deps := testDeps(t)

	writer := NewQueueWriter(cfg("qw", map[string]any{"queue": "q"}), deps)
	reader := NewQueueReader(cfg("qr", map[string]any{"queue": "q"}), deps)

	in := node.NewOutput("p")
	in.Data["i"] = 1

	_, err := node.Run(context.Background(), writer, in)
	require.NoError(t, err)

	out, err := node.Run(context.Background(), reader, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, out.Data["i"].(float64))
	assert.False(t, out.Completed())
}

func TestQueueWriterCleanupPushesSentinel(t *testing.T) {
	deps := testDeps(t)

	writer := NewQueueWriter(cfg("qw", map[string]any{"queue": "q"}), deps)
	reader := NewQueueReader(cfg("qr", map[string]any{"queue": "q"}), deps)

	sentinel := node.NewSentinel("p")
	out, err := node.Run(context.Background(), writer, sentinel)
	require.NoError(t, err)
	assert.Same(t, sentinel, out)

	popped, err := node.Run(context.Background(), reader, nil)
	require.NoError(t, err)
	assert.True(t, popped.Completed())
}

func TestQueueReaderUsesAssignedConfigName(t *testing.T) {
	deps := testDeps(t)

	reader := NewQueueReader(&node.Config{
		ID:   "qr",
		Type: QueueReaderIdentifier,
		Data: node.ConfigData{Config: map[string]any{"queue": "assigned"}},
	}, deps)

	require.NoError(t, deps.Queues.Push(context.Background(), "assigned", node.NewSentinel("x")))

	out, err := node.Run(context.Background(), reader, nil)
	require.NoError(t, err)
	assert.True(t, out.Completed())
}

func TestQueueEndpointsReportRoles(t *testing.T) {
	deps := testDeps(t)
	writer := NewQueueWriter(cfg("qw", nil), deps)
	reader := NewQueueReader(cfg("qr", nil), deps)

	assert.True(t, writer.WritesQueue())
	assert.True(t, reader.ReadsQueue())
}

func TestWebhookProducerReceivesDelivery(t *testing.T) {
	deps := testDeps(t)
	ctx := context.Background()

	n := NewWebhook(cfg("hook", map[string]any{"webhook_id": "hook1"}), deps)
	require.NoError(t, n.Setup(ctx))
	defer n.Cleanup(ctx, nil)

	delivery := map[string]any{
		"body":         map[string]any{"user": "a"},
		"headers":      map[string]any{},
		"method":       "POST",
		"query_params": map[string]any{},
	}
	receivers, err := deps.PubSub.Publish(ctx, WebhookChannel("hook1"), delivery)
	require.NoError(t, err)
	require.Equal(t, int64(1), receivers)

	out, err := node.Run(ctx, n, nil)
	require.NoError(t, err)

	webhook := out.Data["webhook"].(map[string]any)
	assert.Equal(t, "hook1", webhook["webhook_id"])
	data := webhook["data"].(map[string]any)
	body := data["body"].(map[string]any)
	assert.Equal(t, "a", body["user"])

	// Downstream templates resolve into the delivery
	rendered, err := node.RenderForm(map[string]any{
		"user": "{{ data.webhook.data.body.user }}",
	}, out)
	require.NoError(t, err)
	assert.Equal(t, "a", rendered["user"])
}

func TestSetDataMergesRenderedValues(t *testing.T) {
	n := NewSetData(cfg("s", map[string]any{
		"values": map[string]any{"user": "{{ data.login }}"},
	}))

	in := node.NewOutput("p")
	in.Data["login"] = "kay"

	out, err := node.Run(context.Background(), n, in)
	require.NoError(t, err)

	values := out.Data["set_data"].(map[string]any)
	assert.Equal(t, "kay", values["user"])
}

func TestIntervalEmitsIterationPayload(t *testing.T) {
	n := NewInterval(cfg("tick", map[string]any{"interval": "1ms"}))

	out, err := node.Run(context.Background(), n, nil)
	require.NoError(t, err)

	payload := out.Data["interval"].(map[string]any)
	assert.Equal(t, 1, payload["iteration"])
}

func TestIntervalRejectsBadDuration(t *testing.T) {
	n := NewInterval(cfg("tick", map[string]any{"interval": "soon"}))

	_, err := node.Run(context.Background(), n, nil)
	require.Error(t, err)
}
