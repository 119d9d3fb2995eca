package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonathan/filing-validator/internal/llm"
	"github.com/jonathan/filing-validator/internal/prompts"
	"github.com/jonathan/filing-validator/internal/types"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of rows sent to the model per request
const DefaultBatchSize = 10

// Validator reviews rows, taxonomy information and reporting periods with a model.
// Calls are issued one at a time from the calling goroutine.
type Validator struct {
	client    llm.Client
	templates prompts.Templates
	batchSize int
	tier      llm.ModelTier
	logger    *zap.Logger
}

// New creates a Validator. A batchSize below 1 uses DefaultBatchSize.
func New(client llm.Client, templates prompts.Templates, batchSize int, logger *zap.Logger) *Validator {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		client:    client,
		templates: templates,
		batchSize: batchSize,
		tier:      llm.TierStandard,
		logger:    logger,
	}
}

// Batches splits rows into contiguous groups of at most size rows
func Batches(rows []types.Row, size int) [][]types.Row {
	if size < 1 {
		size = DefaultBatchSize
	}
	var out [][]types.Row
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

// ValidateRows validates rows in batches. Rows whose page was rendered carry the
// page image. The result holds the model's entries in reply order, batch after
// batch, with an error marker in place of any batch whose reply was unusable.
func (v *Validator) ValidateRows(ctx context.Context, rows []types.Row, images map[int][]byte) []any {
	rows = AttachPageImages(rows, images, v.logger)

	system := v.templates.Get(prompts.KeySystemPrompt)
	tmpl := v.templates.Get(prompts.KeyUserPrompt)

	out := []any{}
	for i, batch := range Batches(rows, v.batchSize) {
		log := v.logger.With(zap.Int("batch", i), zap.Int("rows", len(batch)))

		data, err := json.MarshalIndent(batch, "", "  ")
		if err != nil {
			log.Error("validation: failed to encode batch", zap.Error(err))
			out = append(out, Marker(fmt.Sprintf("%s: %v", MsgInvalidJSON, err)))
			continue
		}
		screen(log, "rows", string(data))

		reply, err := v.client.Complete(ctx, system, prompts.Format(tmpl, map[string]string{"Data": string(data)}), v.tier)
		if err != nil {
			log.Error("validation: model request failed", zap.Error(err))
			out = append(out, Marker(fmt.Sprintf("LLM request failed: %v", err)))
			continue
		}

		out = append(out, v.batchEntries(reply, log)...)
	}
	return out
}

func (v *Validator) batchEntries(reply string, log *zap.Logger) []any {
	raw, err := llm.ParseJSONResponse(reply)
	if errors.Is(err, llm.ErrNotJSON) {
		log.Warn("validation: reply is not JSON")
		return []any{Marker(MsgInvalidJSON)}
	}
	if err != nil {
		log.Warn("validation: reply failed to parse", zap.Error(err))
		return []any{Marker(fmt.Sprintf("%s: %v", MsgInvalidJSON, err))}
	}

	elems, err := llm.JSONElements(raw)
	if err != nil {
		return []any{Marker(fmt.Sprintf("%s: %v", MsgInvalidJSON, err))}
	}
	if llm.AllEmptyObjects(elems) {
		log.Debug("validation: reply holds only empty objects")
		return nil
	}

	out := make([]any, len(elems))
	for i, e := range elems {
		out[i] = e
	}
	return out
}

// ValidateTaxonomy reviews the filing information rows and statement text in one call.
// The model's reply is returned as parsed; failures yield a one-element error list.
func (v *Validator) ValidateTaxonomy(ctx context.Context, data []any) any {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return v.failed("taxonomy", "Taxonomy validation failed", err)
	}
	screen(v.logger, "taxonomy", string(payload))
	user := prompts.Format(v.templates.Get(prompts.KeyTaxonomy), map[string]string{"Data": string(payload)})
	return v.single(ctx, "taxonomy",
		v.templates.Get(prompts.KeySystemPromptTaxonomy), user,
		MsgInvalidTaxonomyResponse, "Taxonomy validation failed")
}

// ValidatePeriods compares the periods found in the filing with the caller's target dates
func (v *Validator) ValidatePeriods(ctx context.Context, periods []string, dates []any) any {
	if periods == nil {
		periods = []string{}
	}
	periodJSON, err := json.MarshalIndent(periods, "", "  ")
	if err != nil {
		return v.failed("period", "Period validation failed", err)
	}
	dateJSON, err := json.MarshalIndent(dates, "", "  ")
	if err != nil {
		return v.failed("period", "Period validation failed", err)
	}

	user := prompts.Format(v.templates.Get(prompts.KeyUserPromptPeriod), map[string]string{
		"Periods":    string(periodJSON),
		"InputDates": string(dateJSON),
	})
	return v.single(ctx, "period",
		v.templates.Get(prompts.KeySystemPromptPeriod), user,
		MsgInvalidPeriodResponse, "Period validation failed")
}

func (v *Validator) single(ctx context.Context, kind, system, user, badFormat, failure string) any {
	reply, err := v.client.Complete(ctx, system, user, v.tier)
	if err != nil {
		return v.failed(kind, failure, err)
	}

	raw, err := llm.ParseJSONResponse(reply)
	if errors.Is(err, llm.ErrNotJSON) {
		v.logger.Error("validation: reply is not JSON", zap.String("kind", kind))
		return []types.Row{Marker(badFormat)}
	}
	if err != nil {
		return v.failed(kind, failure, err)
	}
	return raw
}

func (v *Validator) failed(kind, prefix string, cause error) []types.Row {
	err := &Error{Kind: kind, Message: "model call did not produce a usable reply", Cause: cause}
	v.logger.Error("validation: call failed", zap.Error(err))
	return []types.Row{Marker(fmt.Sprintf("%s: %v", prefix, cause))}
}
