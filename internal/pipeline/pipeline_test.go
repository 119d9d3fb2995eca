package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"

	"github.com/jonathan/filing-validator/internal/llm"
	"github.com/jonathan/filing-validator/internal/pipeline/steps"
	"github.com/jonathan/filing-validator/internal/prompts"
	"github.com/jonathan/filing-validator/internal/storage"
	"github.com/jonathan/filing-validator/internal/types"
)

func TestMain(m *testing.M) {
	// the genai dependency tree starts an opencensus stats worker at init
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var fixedNow = time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)

const statementHTML = `<html><body>
<p>STATEMENT OF COMPLIANCE</p>
<p>The financial statements have been prepared in accordance with FRS 101.</p>
<p>2. Accounting Policies</p>
</body></html>`

// MockLLMClient implements llm.Client for testing
type MockLLMClient struct {
	mu           sync.Mutex
	CompleteFunc func(ctx context.Context, system, user string, tier llm.ModelTier) (string, error)
	prompts      []string
}

func (m *MockLLMClient) Complete(ctx context.Context, system, user string, tier llm.ModelTier) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, user)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, user, tier)
	}
	return `[{"status":"VALID"}]`, nil
}

func (m *MockLLMClient) GetModel(llm.ModelTier) string { return "mock-model" }

func (m *MockLLMClient) Close() error { return nil }

func (m *MockLLMClient) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func workbook(t *testing.T, sheets map[string][][]any, order ...string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(name, cell, &values))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func filingWorkbook(t *testing.T, taxonomyName string) []byte {
	return workbook(t, map[string][][]any{
		"Filing Details": {
			{"Line Item Description", "Concept Label", "Comment Text", "Dimensions", "Tag Value", "Page Number", "Period"},
			{"Turnover", "Revenue", nil, nil, 1000, 3, "2023-12-31"},
			{nil, nil, nil, nil, nil, nil, nil},
			{"Sundry", "Other", nil, nil, 5, 4, "2022-12-31"},
		},
		"Filing Information": {
			{"Filer Name", "SWL"},
			{"Taxonomy Name", taxonomyName},
		},
	}, "Filing Details", "Filing Information")
}

func seedStore(t *testing.T, taxonomyName string) *storage.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, store.Put(ctx, types.DefaultContainer, "acme/accounts.xlsx", filingWorkbook(t, taxonomyName)))
	require.NoError(t, store.Put(ctx, types.DefaultContainer, "acme/accounts.html", []byte(statementHTML)))

	reference := workbook(t, map[string][][]any{
		"Presentation": {{"Label"}, {"Revenue"}, {"Costs"}},
	}, "Presentation")
	require.NoError(t, store.Put(ctx, "taxonomy", "FRC-2023-FRS-101.xlsx", reference))
	require.NoError(t, store.Put(ctx, "taxonomy", "FRC-2023-FRS-102.xlsx", []byte("not used")))
	require.NoError(t, store.Put(ctx, "taxonomy", "Ireland-FRS-2023-FRS-101.xlsx", []byte("not used")))
	return store
}

func twoBlobRequest(dates ...any) types.Request {
	return types.Request{
		Blobs: []types.BlobRef{
			{Name: "acme/accounts.xlsx", Container: types.DefaultContainer},
			{Name: "acme/accounts.html"},
		},
		SelectedDates: dates,
	}
}

func newPipeline(store storage.Store, client llm.Client, mutate ...func(*Deps, *Options)) *Pipeline {
	deps := Deps{
		Store: store,
		LLM:   client,
		Now:   func() time.Time { return fixedNow },
	}
	opts := DefaultOptions()
	for _, fn := range mutate {
		fn(&deps, &opts)
	}
	return New(deps, opts)
}

func readOutput(t *testing.T, store storage.Store, name string) []map[string]json.RawMessage {
	t.Helper()
	data, err := store.Get(context.Background(), "gold", name)
	require.NoError(t, err)
	var entries []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &entries))
	return entries
}

func TestRun_EndToEnd(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	client := &MockLLMClient{}
	p := newPipeline(store, client)

	result, err := p.Run(context.Background(), twoBlobRequest(map[string]any{"start": "2023-01-01", "end": "2023-12-31"}))
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"acme/accounts.xlsx", "acme/accounts.html"}, result.ProcessedFiles)
	assert.Equal(t, "accounts-validated-output-2024-03-05T10-20-30.json", result.OutputFile)
	_, err = uuid.Parse(result.RunID)
	assert.NoError(t, err)

	entries := readOutput(t, store, result.OutputFile)
	require.Len(t, entries, 4)
	assert.Contains(t, entries[0], "taxonomy_validation")
	assert.Contains(t, entries[1], "period_validation")
	assert.JSONEq(t, `"VALID"`, string(entries[2]["status"]))
	assert.JSONEq(t, `"Other"`, string(entries[3]["Concept Label"]))
	assert.JSONEq(t,
		`[{"status":"FLAGGED FOR REVIEW","reason":"Concept Label not found in matched taxonomy file"}]`,
		string(entries[3]["validation_result"]))

	calls := client.calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0], "html_statement_of_compliance")
	assert.Contains(t, calls[0], "FRC 2023 FRS 101")
	assert.Contains(t, calls[1], "2022-12-31")
	assert.Contains(t, calls[2], `"Concept Label": "Revenue"`)
	assert.NotContains(t, calls[2], `"Concept Label": "Other"`)
}

func TestRun_PeriodValidationOnlyWithDates(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	p := newPipeline(store, &MockLLMClient{})

	result, err := p.Run(context.Background(), twoBlobRequest())
	require.NoError(t, err)

	for _, entry := range readOutput(t, store, result.OutputFile) {
		assert.NotContains(t, entry, "period_validation")
	}
}

func TestRun_SkipMatchedRowValidation(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	client := &MockLLMClient{}
	p := newPipeline(store, client, func(_ *Deps, o *Options) { o.ValidateMatchedRows = false })

	result, err := p.Run(context.Background(), twoBlobRequest())
	require.NoError(t, err)

	entries := readOutput(t, store, result.OutputFile)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0], "taxonomy_validation")
	assert.Contains(t, entries[1], "Concept Label")
	assert.Len(t, client.calls(), 1)
}

func TestRun_NoTaxonomyMatchSendsAllRows(t *testing.T) {
	store := seedStore(t, "IFRS")
	client := &MockLLMClient{}
	p := newPipeline(store, client)

	result, err := p.Run(context.Background(), twoBlobRequest())
	require.NoError(t, err)

	calls := client.calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1], `"Concept Label": "Revenue"`)
	assert.Contains(t, calls[1], `"Concept Label": "Other"`)

	for _, entry := range readOutput(t, store, result.OutputFile) {
		assert.NotContains(t, string(entry["validation_result"]), "FLAGGED FOR REVIEW")
	}
}

func TestRun_ZeroBlobs(t *testing.T) {
	store := storage.NewMemoryStore()
	client := &MockLLMClient{}
	p := newPipeline(store, client)

	result, err := p.Run(context.Background(), types.Request{})
	assert.Nil(t, result)

	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "No blobs provided.", inputErr.Message)
	assert.Empty(t, client.calls())

	_, err = store.List(context.Background(), "gold")
	assert.True(t, storage.IsNotFound(err))
}

type fakeExtractor func(ref types.BlobRef) types.ExtractionResult

func (f fakeExtractor) Extract(_ context.Context, ref types.BlobRef) types.ExtractionResult {
	return f(ref)
}

func TestRun_OneResultPerBlob(t *testing.T) {
	const n = 25
	var blobs []types.BlobRef
	for i := 0; i < n; i++ {
		blobs = append(blobs, types.BlobRef{Name: fmt.Sprintf("blob-%02d.xlsx", i)})
	}

	ex := fakeExtractor(func(ref types.BlobRef) types.ExtractionResult {
		switch {
		case strings.HasSuffix(ref.Name, "3.xlsx"):
			panic("boom")
		case strings.HasSuffix(ref.Name, "7.xlsx"):
			return types.ExtractionResult{BlobName: ref.Name, Error: "Error processing blob " + ref.Name + ": corrupt"}
		default:
			time.Sleep(time.Millisecond)
			return types.ExtractionResult{BlobName: ref.Name}
		}
	})

	store := storage.NewMemoryStore()
	p := newPipeline(store, &MockLLMClient{}, func(d *Deps, o *Options) {
		d.Extractor = ex
		o.MaxWorkers = 3
		o.MatchTaxonomy = false
	})

	result, err := p.Run(context.Background(), types.Request{Blobs: blobs})
	require.NoError(t, err)

	assert.Len(t, result.ProcessedFiles, n)
	assert.Equal(t, types.StatusCompletedWithErrors, result.Status)
	require.Len(t, result.Errors, 5)
	panics := 0
	for _, e := range result.Errors {
		if strings.HasSuffix(e, ": boom") {
			panics++
		}
	}
	assert.Equal(t, 3, panics)
	assert.Equal(t, "blob-00-validated-output-2024-03-05T10-20-30.json", result.OutputFile)
}

func TestRun_ExtractionErrorsDoNotStopOthers(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	p := newPipeline(store, &MockLLMClient{})

	req := twoBlobRequest()
	req.Blobs = append(req.Blobs, types.BlobRef{Name: "missing.xlsx"}, types.BlobRef{Name: "raw.xlsx", Container: "bronze"})

	result, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompletedWithErrors, result.Status)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, strings.Join(result.Errors, "\n"), "Blobs from 'bronze' container not allowed: raw.xlsx")
	assert.Len(t, readOutput(t, store, result.OutputFile), 3)
}

func TestRun_TaxonomyListingFailure(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	client := &MockLLMClient{}
	p := newPipeline(store, client, func(_ *Deps, o *Options) { o.TaxonomyContainer = "absent" })

	result, err := p.Run(context.Background(), twoBlobRequest())
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompletedWithErrors, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Error listing taxonomy files")

	calls := client.calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1], `"Concept Label": "Other"`)
}

type missingPrompts struct{}

func (missingPrompts) Load(context.Context) (prompts.Templates, error) {
	return nil, &prompts.TemplateError{Missing: []string{prompts.KeyTaxonomy}, Message: "templates failed validation"}
}

func TestRun_MissingPromptsIsFatal(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	client := &MockLLMClient{}
	p := newPipeline(store, client, func(d *Deps, _ *Options) { d.Prompts = missingPrompts{} })

	result, err := p.Run(context.Background(), twoBlobRequest())
	assert.Nil(t, result)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	var tmplErr *prompts.TemplateError
	assert.ErrorAs(t, err, &tmplErr)
	assert.Empty(t, client.calls())

	_, err = store.List(context.Background(), "gold")
	assert.True(t, storage.IsNotFound(err))
}

type failingPut struct {
	storage.Store
}

func (failingPut) Put(context.Context, string, string, []byte) error {
	return errors.New("disk full")
}

func TestRun_OutputWriteFailureIsFatal(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	p := newPipeline(failingPut{store}, &MockLLMClient{})

	result, err := p.Run(context.Background(), twoBlobRequest())
	assert.Nil(t, result)

	var outErr *OutputError
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, "gold", outErr.Container)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_ModelFailuresBecomeMarkers(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	client := &MockLLMClient{
		CompleteFunc: func(context.Context, string, string, llm.ModelTier) (string, error) {
			return "", errors.New("quota exceeded")
		},
	}
	p := newPipeline(store, client)

	result, err := p.Run(context.Background(), twoBlobRequest())
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, result.Status)

	entries := readOutput(t, store, result.OutputFile)
	require.Len(t, entries, 3)
	assert.JSONEq(t, `[{"error":"Taxonomy validation failed: quota exceeded"}]`, string(entries[0]["taxonomy_validation"]))
	assert.JSONEq(t, `"LLM request failed: quota exceeded"`, string(entries[1]["error"]))
}

type recordedStep struct {
	step, status string
}

type memoryRecorder struct {
	mu       sync.Mutex
	started  []string
	steps    []recordedStep
	finished *types.PipelineResult
}

func (m *memoryRecorder) StartRun(_ context.Context, _ uuid.UUID, blobs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = blobs
	return nil
}

func (m *memoryRecorder) RecordStep(_ context.Context, _ uuid.UUID, step, _, status string, _ time.Duration, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, recordedStep{step, status})
	return nil
}

func (m *memoryRecorder) CompleteRun(_ context.Context, _ uuid.UUID, result *types.PipelineResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = result
	return errors.New("recorder offline")
}

func TestRun_RecordsStepsAndProgress(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	rec := &memoryRecorder{}
	var events []ProgressEvent
	p := newPipeline(store, &MockLLMClient{}, func(d *Deps, _ *Options) {
		d.Recorder = rec
		d.Progress = func(e ProgressEvent) { events = append(events, e) }
	})

	result, err := p.Run(context.Background(), twoBlobRequest())
	require.NoError(t, err, "recorder failures must not fail the run")

	assert.Equal(t, []string{"acme/accounts.xlsx", "acme/accounts.html"}, rec.started)
	assert.Equal(t, result, rec.finished)
	assert.Contains(t, rec.steps, recordedStep{steps.MatchTaxonomy, steps.StatusCompleted})
	assert.Contains(t, rec.steps, recordedStep{steps.ValidatePeriods, steps.StatusSkipped})
	assert.Contains(t, rec.steps, recordedStep{steps.WriteOutput, steps.StatusCompleted})

	require.NotEmpty(t, events)
	assert.Equal(t, steps.ValidateRequest, events[0].Step)
	assert.Equal(t, result.RunID, events[0].RunID)
}

func TestRun_ModelPanicFailsRun(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	rec := &memoryRecorder{}
	client := &MockLLMClient{
		CompleteFunc: func(context.Context, string, string, llm.ModelTier) (string, error) {
			panic("boom from model client")
		},
	}
	p := newPipeline(store, client, func(d *Deps, _ *Options) { d.Recorder = rec })

	var (
		result *types.PipelineResult
		err    error
	)
	require.NotPanics(t, func() {
		result, err = p.Run(context.Background(), twoBlobRequest())
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom from model client")

	require.NotNil(t, rec.finished)
	assert.Equal(t, types.StatusFailed, rec.finished.Status)
	assert.Contains(t, rec.steps, recordedStep{steps.ValidateTaxonomy, steps.StatusFailed})
	assert.Contains(t, rec.steps, recordedStep{steps.WriteOutput, steps.StatusSkipped})

	_, err = store.List(context.Background(), "gold")
	assert.True(t, storage.IsNotFound(err))
}

func TestRun_FailureSkipsUnstartedSteps(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	rec := &memoryRecorder{}
	p := newPipeline(store, &MockLLMClient{}, func(d *Deps, _ *Options) {
		d.Prompts = missingPrompts{}
		d.Recorder = rec
	})

	_, err := p.Run(context.Background(), twoBlobRequest())
	require.Error(t, err)

	assert.Contains(t, rec.steps, recordedStep{steps.LoadPrompts, steps.StatusFailed})
	for _, step := range []string{steps.ListTaxonomy, steps.ExtractBlobs, steps.ValidateRows, steps.WriteOutput} {
		assert.Contains(t, rec.steps, recordedStep{step, steps.StatusSkipped}, step)
	}
	require.NotNil(t, rec.finished)
	assert.Equal(t, types.StatusFailed, rec.finished.Status)
}

func TestRun_ContextProgress(t *testing.T) {
	store := seedStore(t, "FRC 2023 FRS 101")
	var global, scoped int
	p := newPipeline(store, &MockLLMClient{}, func(d *Deps, _ *Options) {
		d.Progress = func(ProgressEvent) { global++ }
	})

	ctx := WithProgress(context.Background(), func(ProgressEvent) { scoped++ })
	_, err := p.Run(ctx, twoBlobRequest())
	require.NoError(t, err)

	assert.Positive(t, scoped)
	assert.Equal(t, global, scoped)
}

func TestOutputName(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	assert.Equal(t, "report-validated-output-2025-01-02T02-04-05.json", OutputName("dir/report.xlsx", at))
	assert.Equal(t, "report.v2-validated-output-2025-01-02T02-04-05.json", OutputName("report.v2.html", at))
	assert.Equal(t, "filing-validated-output-2025-01-02T02-04-05.json", OutputName("", at))
}

func TestImagesFor(t *testing.T) {
	p := newPipeline(storage.NewMemoryStore(), &MockLLMClient{})
	own := map[int][]byte{1: []byte("own")}
	same := map[int][]byte{1: []byte("same")}
	first := map[int][]byte{1: []byte("first")}

	all := []types.ExtractionResult{
		{BlobName: "other.html", PageImages: first},
		{BlobName: "acme.html", PageImages: same},
	}

	assert.Equal(t, own, p.imagesFor(types.ExtractionResult{BlobName: "x.xlsx", PageImages: own}, all))
	assert.Equal(t, same, p.imagesFor(types.ExtractionResult{BlobName: "acme.xlsx"}, all))
	assert.Equal(t, first, p.imagesFor(types.ExtractionResult{BlobName: "zzz.xlsx"}, all))
	assert.Nil(t, p.imagesFor(types.ExtractionResult{BlobName: "zzz.xlsx"}, nil))
}
