package node

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasttemplate"
)

const (
	tagStart = "{{"
	tagEnd   = "}}"
)

// RenderForm renders every {{ ... }} expression inside a form against
// the incoming output. Expressions are dotted paths resolved over
// {"data": ..., "metadata": ...}. Non-string values are walked
// recursively; maps and slices keep their shape.
func RenderForm(form map[string]any, input *Output) (map[string]any, error) {
	doc, err := templateContext(input)
	if err != nil {
		return nil, err
	}

	rendered := make(map[string]any, len(form))
	for field, value := range form {
		out, err := renderValue(value, doc)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		rendered[field] = out
	}
	return rendered, nil
}

func templateContext(input *Output) ([]byte, error) {
	ctx := map[string]any{
		"data":     map[string]any{},
		"metadata": map[string]any{},
	}
	if input != nil {
		if input.Data != nil {
			ctx["data"] = input.Data
		}
		if input.Meta != nil {
			ctx["metadata"] = input.Meta
		}
	}
	doc, err := json.Marshal(ctx)
	if err != nil {
		return nil, fmt.Errorf("marshal template context: %w", err)
	}
	return doc, nil
}

func renderValue(value any, doc []byte) (any, error) {
	switch v := value.(type) {
	case string:
		return renderString(v, doc)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			r, err := renderValue(inner, doc)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			r, err := renderValue(inner, doc)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

func renderString(s string, doc []byte) (string, error) {
	if !strings.Contains(s, tagStart) {
		return s, nil
	}

	t, err := fasttemplate.NewTemplate(s, tagStart, tagEnd)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", s, err)
	}

	return t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		path := strings.TrimSpace(tag)
		if path == "" {
			return 0, fmt.Errorf("empty template expression")
		}
		result := gjson.GetBytes(doc, path)
		if !result.Exists() {
			return 0, fmt.Errorf("template path %q not found", path)
		}
		return w.Write([]byte(result.String()))
	})
}
