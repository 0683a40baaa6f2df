package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookInput() *Output {
	in := NewOutput("hook")
	in.Data["webhook"] = map[string]any{
		"webhook_id": "hook1",
		"data": map[string]any{
			"body":   map[string]any{"user": "a"},
			"method": "POST",
		},
	}
	return in
}

func TestRenderFormResolvesPaths(t *testing.T) {
	form := map[string]any{
		"greeting": "hello {{ data.webhook.data.body.user }}",
		"method":   "{{ data.webhook.data.method }}",
		"static":   "unchanged",
		"number":   42,
	}

	rendered, err := RenderForm(form, webhookInput())
	require.NoError(t, err)

	assert.Equal(t, "hello a", rendered["greeting"])
	assert.Equal(t, "POST", rendered["method"])
	assert.Equal(t, "unchanged", rendered["static"])
	assert.Equal(t, 42, rendered["number"])
}

func TestRenderFormNestedValues(t *testing.T) {
	form := map[string]any{
		"values": map[string]any{
			"user": "{{ data.webhook.data.body.user }}",
			"tags": []any{"{{ data.webhook.webhook_id }}", "fixed"},
		},
	}

	rendered, err := RenderForm(form, webhookInput())
	require.NoError(t, err)

	values := rendered["values"].(map[string]any)
	assert.Equal(t, "a", values["user"])
	assert.Equal(t, []any{"hook1", "fixed"}, values["tags"])
}

func TestRenderFormMissingPath(t *testing.T) {
	form := map[string]any{
		"broken": "{{ data.nope.missing }}",
	}

	_, err := RenderForm(form, webhookInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.nope.missing")
}

func TestRenderFormNilInput(t *testing.T) {
	form := map[string]any{"plain": "value"}

	rendered, err := RenderForm(form, nil)
	require.NoError(t, err)
	assert.Equal(t, "value", rendered["plain"])
}
