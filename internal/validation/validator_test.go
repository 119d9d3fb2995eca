package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jonathan/filing-validator/internal/llm"
	"github.com/jonathan/filing-validator/internal/prompts"
	"github.com/jonathan/filing-validator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLLMClient implements llm.Client for testing
type MockLLMClient struct {
	CompleteFunc func(ctx context.Context, system, user string, tier llm.ModelTier) (string, error)
	calls        []string
}

func (m *MockLLMClient) Complete(ctx context.Context, system, user string, tier llm.ModelTier) (string, error) {
	m.calls = append(m.calls, user)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, user, tier)
	}
	return "[]", nil
}

func (m *MockLLMClient) GetModel(llm.ModelTier) string { return "mock-model" }

func (m *MockLLMClient) Close() error { return nil }

func testTemplates() prompts.Templates {
	return prompts.Templates{
		prompts.KeySystemPrompt:         "rows-system",
		prompts.KeyUserPrompt:           "ROWS {{.Data}}",
		prompts.KeyTaxonomy:             "TAXONOMY {{.Data}}",
		prompts.KeySystemPromptTaxonomy: "taxonomy-system",
		prompts.KeySystemPromptPeriod:   "period-system",
		prompts.KeyUserPromptPeriod:     "PERIODS {{.Periods}} DATES {{.InputDates}}",
	}
}

func makeRows(n int) []types.Row {
	rows := make([]types.Row, n)
	for i := range rows {
		rows[i] = types.RowOf("Concept Label", fmt.Sprintf("C%d", i), "Page Number", nil)
	}
	return rows
}

func encode(t *testing.T, v any) string {
	t.Helper()
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return string(out)
}

func TestBatches(t *testing.T) {
	batches := Batches(makeRows(23), 10)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 10)
	assert.Len(t, batches[2], 3)
	assert.Equal(t, "C10", batches[1][0].GetString("Concept Label"))

	assert.Empty(t, Batches(nil, 10))
	assert.Len(t, Batches(makeRows(5), 0), 1)
}

func TestValidateRows_BatchesSequentially(t *testing.T) {
	mock := &MockLLMClient{
		CompleteFunc: func(_ context.Context, system, user string, _ llm.ModelTier) (string, error) {
			assert.Equal(t, "rows-system", system)
			assert.True(t, strings.HasPrefix(user, "ROWS ["))
			return "```json\n[{\"ok\":true}]\n```", nil
		},
	}
	v := New(mock, testTemplates(), 10, nil)

	out := v.ValidateRows(context.Background(), makeRows(23), nil)

	assert.Len(t, mock.calls, 3)
	assert.Contains(t, mock.calls[0], `"Concept Label": "C0"`)
	assert.Contains(t, mock.calls[2], `"Concept Label": "C22"`)
	assert.Equal(t, `[{"ok":true},{"ok":true},{"ok":true}]`, encode(t, out))
}

func TestValidateRows_ReplyHandling(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  string
	}{
		{"fenced list", "```json\n[{\"a\":1}]\n```", nil, `[{"a":1}]`},
		{"untagged fence", "```\n[{\"a\":1},{\"b\":2}]\n```", nil, `[{"a":1},{"b":2}]`},
		{"single object", `{"a":1}`, nil, `[{"a":1}]`},
		{"all empty objects", "[{}]", nil, `[]`},
		{"empty list", "[]", nil, `[]`},
		{"not json", "not json", nil, `[{"error":"Invalid JSON format from LLM"}]`},
		{"request failure", "", errors.New("quota exceeded"), `[{"error":"LLM request failed: quota exceeded"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockLLMClient{
				CompleteFunc: func(context.Context, string, string, llm.ModelTier) (string, error) {
					return tt.reply, tt.err
				},
			}
			out := New(mock, testTemplates(), 10, nil).ValidateRows(context.Background(), makeRows(2), nil)
			assert.JSONEq(t, tt.want, encode(t, out))
		})
	}
}

func TestValidateRows_ParseFailureKeepsGoing(t *testing.T) {
	replies := []string{`[{"a":`, `[{"b":2}]`}
	mock := &MockLLMClient{
		CompleteFunc: func(context.Context, string, string, llm.ModelTier) (string, error) {
			r := replies[0]
			replies = replies[1:]
			return r, nil
		},
	}

	out := New(mock, testTemplates(), 1, nil).ValidateRows(context.Background(), makeRows(2), nil)

	require.Len(t, out, 2)
	marker, ok := out[0].(types.Row)
	require.True(t, ok)
	assert.Contains(t, marker.GetString("error"), MsgInvalidJSON)
	assert.JSONEq(t, `{"b":2}`, encode(t, out[1]))
}

func TestValidateRows_NoRows(t *testing.T) {
	mock := &MockLLMClient{}
	out := New(mock, testTemplates(), 10, nil).ValidateRows(context.Background(), nil, nil)
	assert.Empty(t, out)
	assert.Empty(t, mock.calls)
}

func TestValidateRows_AttachesImages(t *testing.T) {
	mock := &MockLLMClient{}
	rows := []types.Row{types.RowOf("Concept Label", "Revenue", "Page Number", 2)}

	New(mock, testTemplates(), 10, nil).ValidateRows(context.Background(), rows, map[int][]byte{2: []byte("png")})

	require.Len(t, mock.calls, 1)
	assert.Contains(t, mock.calls[0], `"page_image_base64": "cG5n"`)
	_, attached := rows[0].Get("page_image_base64")
	assert.False(t, attached)
}

func TestValidateTaxonomy(t *testing.T) {
	data := []any{
		types.RowOf("Filer Name", "Taxonomy Name", "SWL", "FRS 101"),
		map[string]string{"source": "html_statement_of_compliance", "content": "FRS 101 applies"},
	}

	t.Run("parsed reply", func(t *testing.T) {
		mock := &MockLLMClient{
			CompleteFunc: func(_ context.Context, system, user string, _ llm.ModelTier) (string, error) {
				assert.Equal(t, "taxonomy-system", system)
				assert.Contains(t, user, "html_statement_of_compliance")
				assert.Contains(t, user, `"Filer Name": "Taxonomy Name"`)
				return "```json\n[{\"status\":\"VALID\"}]\n```", nil
			},
		}
		out := New(mock, testTemplates(), 10, nil).ValidateTaxonomy(context.Background(), data)
		assert.JSONEq(t, `[{"status":"VALID"}]`, encode(t, out))
	})

	t.Run("malformed reply", func(t *testing.T) {
		mock := &MockLLMClient{
			CompleteFunc: func(context.Context, string, string, llm.ModelTier) (string, error) {
				return "I think it is fine", nil
			},
		}
		out := New(mock, testTemplates(), 10, nil).ValidateTaxonomy(context.Background(), data)
		assert.JSONEq(t, `[{"error":"Invalid taxonomy response format from LLM"}]`, encode(t, out))
	})

	t.Run("request failure", func(t *testing.T) {
		mock := &MockLLMClient{
			CompleteFunc: func(context.Context, string, string, llm.ModelTier) (string, error) {
				return "", errors.New("timeout")
			},
		}
		out := New(mock, testTemplates(), 10, nil).ValidateTaxonomy(context.Background(), data)
		assert.JSONEq(t, `[{"error":"Taxonomy validation failed: timeout"}]`, encode(t, out))
	})
}

func TestValidatePeriods(t *testing.T) {
	dates := []any{map[string]any{"start": "2023-01-01", "end": "2023-12-31"}}

	t.Run("prompt carries both sides", func(t *testing.T) {
		mock := &MockLLMClient{
			CompleteFunc: func(_ context.Context, system, user string, _ llm.ModelTier) (string, error) {
				assert.Equal(t, "period-system", system)
				assert.Contains(t, user, `"2023-12-31"`)
				assert.Contains(t, user, `"start": "2023-01-01"`)
				return `{"status":"MATCH"}`, nil
			},
		}
		out := New(mock, testTemplates(), 10, nil).ValidatePeriods(context.Background(), []string{"2023-12-31"}, dates)
		assert.JSONEq(t, `{"status":"MATCH"}`, encode(t, out))
	})

	t.Run("malformed reply", func(t *testing.T) {
		mock := &MockLLMClient{
			CompleteFunc: func(context.Context, string, string, llm.ModelTier) (string, error) {
				return "MATCH", nil
			},
		}
		out := New(mock, testTemplates(), 10, nil).ValidatePeriods(context.Background(), nil, dates)
		assert.JSONEq(t, `[{"error":"Invalid period validation response format from LLM"}]`, encode(t, out))
		assert.Contains(t, mock.calls[0], "PERIODS []")
	})

	t.Run("parse failure", func(t *testing.T) {
		mock := &MockLLMClient{
			CompleteFunc: func(context.Context, string, string, llm.ModelTier) (string, error) {
				return `[{"status":`, nil
			},
		}
		out := New(mock, testTemplates(), 10, nil).ValidatePeriods(context.Background(), nil, dates)
		rows, ok := out.([]types.Row)
		require.True(t, ok)
		require.Len(t, rows, 1)
		assert.True(t, strings.HasPrefix(rows[0].GetString("error"), "Period validation failed: "))
	})
}
