// Package pipeline orchestrates a validation run: concurrent blob extraction,
// taxonomy matching, row filtering, model validation and output persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jonathan/filing-validator/internal/extraction"
	"github.com/jonathan/filing-validator/internal/llm"
	"github.com/jonathan/filing-validator/internal/pipeline/steps"
	"github.com/jonathan/filing-validator/internal/prompts"
	"github.com/jonathan/filing-validator/internal/rowfilter"
	"github.com/jonathan/filing-validator/internal/storage"
	"github.com/jonathan/filing-validator/internal/taxonomy"
	"github.com/jonathan/filing-validator/internal/types"
	"github.com/jonathan/filing-validator/internal/validation"
)

// StatementSource tags statement-of-compliance text in the taxonomy payload
const StatementSource = "html_statement_of_compliance"

// OutputTimeLayout formats the timestamp in output file names
const OutputTimeLayout = "2006-01-02T15-04-05"

// Extractor produces one extraction result per blob reference
type Extractor interface {
	Extract(ctx context.Context, ref types.BlobRef) types.ExtractionResult
}

// Deps are the external handles a Pipeline uses
type Deps struct {
	Store   storage.Store
	LLM     llm.Client
	Prompts prompts.Store
	// Renderer produces page images for HTML blobs; nil disables them
	Renderer extraction.Renderer
	// Extractor overrides the storage-backed extractor
	Extractor Extractor
	Recorder  RunRecorder
	Progress  ProgressCallback
	Logger    *zap.Logger
	// Now overrides the clock used for output names
	Now func() time.Time
}

// Pipeline runs validation requests. It holds no per-request state and is
// safe for concurrent use.
type Pipeline struct {
	deps      Deps
	opts      Options
	extractor Extractor
	validate  *validator.Validate
	logger    *zap.Logger
}

// New creates a Pipeline
func New(deps Deps, opts Options) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Prompts == nil {
		deps.Prompts = prompts.EmbeddedStore{}
	}
	opts = opts.withDefaults()

	ex := deps.Extractor
	if ex == nil {
		renderer := deps.Renderer
		if !opts.AttachImages {
			renderer = nil
		}
		ex = extraction.New(deps.Store, renderer, deps.Logger.Named("extraction"))
	}

	return &Pipeline{
		deps:      deps,
		opts:      opts,
		extractor: ex,
		validate:  validator.New(),
		logger:    deps.Logger,
	}
}

// run carries the accumulators of one request
type run struct {
	*tracker
	req       types.Request
	results   []types.ExtractionResult
	errs      []string
	validated []any
	log       *zap.Logger
}

// Run processes one request. Per-blob and per-stage problems are reported in
// the result's Errors; a returned error means nothing usable was produced.
func (p *Pipeline) Run(ctx context.Context, req types.Request) (*types.PipelineResult, error) {
	if err := p.validate.Struct(req); err != nil {
		return nil, &InputError{Message: "No blobs provided.", Cause: err}
	}

	runID := uuid.New()
	log := p.logger.With(zap.String("run_id", runID.String()))
	r := &run{
		tracker:   newTracker(ctx, runID, p.deps.Recorder, progressFor(ctx, p.deps.Progress), log),
		req:       req,
		errs:      []string{},
		validated: []any{},
		log:       log,
	}
	names := make([]string, len(req.Blobs))
	for i, b := range req.Blobs {
		names[i] = b.Name
	}
	if p.deps.Recorder != nil {
		if err := p.deps.Recorder.StartRun(ctx, runID, names); err != nil {
			log.Warn("pipeline: failed to record run start", zap.Error(err))
		}
	}
	r.complete(steps.ValidateRequest, fmt.Sprintf("%d blobs requested", len(req.Blobs)))

	result, err := p.executeSafely(ctx, r, names)
	if err != nil {
		log.Error("pipeline: run failed", zap.Error(err))
		r.abandon(err.Error())
		p.finish(ctx, r, &types.PipelineResult{RunID: runID.String(), ProcessedFiles: names, Errors: append(r.errs, err.Error()), Status: types.StatusFailed})
		return nil, err
	}
	p.finish(ctx, r, result)
	return result, nil
}

// executeSafely runs execute, converting a panic in any stage into an error.
func (p *Pipeline) executeSafely(ctx context.Context, r *run, names []string) (result *types.PipelineResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("pipeline: panic during run", zap.Any("panic", rec), zap.Stack("stack"))
			result, err = nil, eris.Errorf("pipeline: %v", rec)
		}
	}()
	return p.execute(ctx, r, names)
}

func (p *Pipeline) execute(ctx context.Context, r *run, names []string) (*types.PipelineResult, error) {
	r.start(steps.LoadPrompts, "loading prompt templates")
	templates, err := p.deps.Prompts.Load(ctx)
	if err != nil {
		r.fail(steps.LoadPrompts, err.Error())
		return nil, &ConfigError{Message: "prompt templates unavailable", Cause: err}
	}
	r.complete(steps.LoadPrompts, fmt.Sprintf("%d templates", len(templates)))
	v := validation.New(p.deps.LLM, templates, p.opts.BatchSize, r.log.Named("validation"))

	candidates := p.listTaxonomy(ctx, r)

	r.start(steps.ExtractBlobs, "extracting blobs")
	r.results = p.extractAll(ctx, r.req.Blobs, r.log)
	for _, res := range r.results {
		if res.Error != "" {
			r.errs = append(r.errs, res.Error)
		}
	}
	r.complete(steps.ExtractBlobs, fmt.Sprintf("%d results, %d errors", len(r.results), len(r.errs)))

	p.validateTaxonomy(ctx, r, v)
	p.validatePeriods(ctx, r, v)
	match := p.matchTaxonomy(r, candidates)
	p.validateRows(ctx, r, v, match)

	return p.writeOutput(ctx, r, names)
}

func (p *Pipeline) listTaxonomy(ctx context.Context, r *run) []string {
	if !p.opts.MatchTaxonomy {
		r.skip(steps.ListTaxonomy, "taxonomy matching disabled")
		return nil
	}

	r.start(steps.ListTaxonomy, "listing reference taxonomies")
	blobs, err := p.deps.Store.List(ctx, p.opts.TaxonomyContainer)
	if err != nil {
		err = eris.Wrapf(err, "pipeline: list container %s", p.opts.TaxonomyContainer)
		r.log.Error("pipeline: taxonomy listing failed", zap.Error(err))
		r.errs = append(r.errs, fmt.Sprintf("Error listing taxonomy files: %v", err))
		r.fail(steps.ListTaxonomy, err.Error())
		return nil
	}

	candidates := make([]string, len(blobs))
	for i, b := range blobs {
		candidates[i] = b.Name
	}
	r.log.Info("pipeline: reference taxonomies listed", zap.Strings("files", candidates))
	r.complete(steps.ListTaxonomy, fmt.Sprintf("%d reference files", len(candidates)))
	return candidates
}

// taxonomyPayload gathers filing information rows and statement text in arrival order
func (r *run) taxonomyPayload() []any {
	var data []any
	for _, res := range r.results {
		for _, row := range res.TaxonomyRows {
			data = append(data, row)
		}
		if res.StatementText != "" {
			data = append(data, types.RowOf("source", StatementSource, "content", res.StatementText))
		}
	}
	return data
}

func (p *Pipeline) validateTaxonomy(ctx context.Context, r *run, v *validation.Validator) {
	if !r.ready(steps.ValidateTaxonomy) {
		return
	}
	data := r.taxonomyPayload()
	if len(data) == 0 {
		r.log.Warn("pipeline: no taxonomy data found across blobs")
		r.skip(steps.ValidateTaxonomy, "no taxonomy data")
		return
	}

	r.start(steps.ValidateTaxonomy, fmt.Sprintf("%d taxonomy entries", len(data)))
	r.validated = append(r.validated, types.RowOf("taxonomy_validation", v.ValidateTaxonomy(ctx, data)))
	r.complete(steps.ValidateTaxonomy, "taxonomy validated")
}

func (p *Pipeline) validatePeriods(ctx context.Context, r *run, v *validation.Validator) {
	if !p.opts.ValidatePeriods {
		r.skip(steps.ValidatePeriods, "period validation disabled")
		return
	}
	if len(r.req.SelectedDates) == 0 {
		r.log.Warn("pipeline: no input dates provided for period validation")
		r.skip(steps.ValidatePeriods, "no input dates")
		return
	}
	if !r.ready(steps.ValidatePeriods) {
		return
	}

	var periods []string
	for _, res := range r.results {
		periods = append(periods, res.UniquePeriods...)
	}

	r.start(steps.ValidatePeriods, fmt.Sprintf("%d periods", len(periods)))
	r.validated = append(r.validated, types.RowOf("period_validation", v.ValidatePeriods(ctx, periods, r.req.SelectedDates)))
	r.complete(steps.ValidatePeriods, "periods validated")
}

func (p *Pipeline) matchTaxonomy(r *run, candidates []string) *types.TaxonomyMatch {
	if !p.opts.MatchTaxonomy {
		r.skip(steps.MatchTaxonomy, "taxonomy matching disabled")
		return nil
	}
	if !r.ready(steps.MatchTaxonomy) {
		return nil
	}

	var rows []types.Row
	for _, res := range r.results {
		rows = append(rows, res.TaxonomyRows...)
	}
	name, ok := taxonomy.ExtractName(rows)
	if !ok {
		r.log.Info("pipeline: no taxonomy name in filing information")
		r.complete(steps.MatchTaxonomy, "no taxonomy name")
		return nil
	}

	m := taxonomy.Match(name, candidates)
	r.log.Info("pipeline: taxonomy matched",
		zap.String("taxonomy_name", name),
		zap.String("taxonomy_type", m.TaxonomyType),
		zap.String("jurisdiction", m.Jurisdiction),
		zap.String("matched_file", m.MatchedFile),
		zap.Int("score", m.Score))
	r.complete(steps.MatchTaxonomy, fmt.Sprintf("matched %q", m.MatchedFile))
	return &m
}

func (p *Pipeline) validateRows(ctx context.Context, r *run, v *validation.Validator, match *types.TaxonomyMatch) {
	if !r.ready(steps.ValidateRows) {
		return
	}
	r.start(steps.ValidateRows, "validating rows")

	var filter *rowfilter.Filter
	if match.Found() {
		filter = rowfilter.New(p.deps.Store, p.opts.TaxonomyContainer, r.log.Named("rowfilter"))
	}

	flagged := 0
	for _, res := range r.results {
		if !res.HasRows() {
			continue
		}
		images := p.imagesFor(res, r.results)

		if filter == nil {
			r.log.Warn("pipeline: no matched taxonomy file, sending all rows to the model", zap.String("blob", res.BlobName))
			r.validated = append(r.validated, v.ValidateRows(ctx, res.ExcelRows, images)...)
			continue
		}

		matched, unmatched := filter.FilterByTaxonomy(ctx, res.ExcelRows, match.MatchedFile)
		if p.opts.ValidateMatchedRows && len(matched) > 0 {
			r.validated = append(r.validated, v.ValidateRows(ctx, matched, images)...)
		}
		for _, row := range unmatched {
			r.validated = append(r.validated, rowfilter.Flagged(row))
		}
		flagged += len(unmatched)
	}
	r.complete(steps.ValidateRows, fmt.Sprintf("%d entries, %d flagged", len(r.validated), flagged))
}

// imagesFor returns the page images to pair with res's rows: its own, else
// those of an HTML blob with the same base name, else the first HTML blob that
// rendered pages.
func (p *Pipeline) imagesFor(res types.ExtractionResult, all []types.ExtractionResult) map[int][]byte {
	if !p.opts.AttachImages {
		return nil
	}
	if len(res.PageImages) > 0 {
		return res.PageImages
	}

	base := baseName(res.BlobName)
	var first map[int][]byte
	for _, other := range all {
		if len(other.PageImages) == 0 {
			continue
		}
		if baseName(other.BlobName) == base {
			return other.PageImages
		}
		if first == nil {
			first = other.PageImages
		}
	}
	return first
}

func (p *Pipeline) writeOutput(ctx context.Context, r *run, names []string) (*types.PipelineResult, error) {
	if !r.ready(steps.WriteOutput) {
		return nil, &OutputError{Container: p.opts.ResultsContainer, Cause: eris.New("pipeline: row validation did not complete")}
	}

	data, err := json.MarshalIndent(r.validated, "", "  ")
	if err != nil {
		r.fail(steps.WriteOutput, err.Error())
		return nil, &SerializationError{Message: "Invalid JSON format from LLM", Cause: err}
	}

	name := OutputName(names[0], p.deps.Now())
	r.start(steps.WriteOutput, name)
	if err := p.deps.Store.Put(ctx, p.opts.ResultsContainer, name, data); err != nil {
		r.fail(steps.WriteOutput, err.Error())
		return nil, &OutputError{
			Container: p.opts.ResultsContainer,
			Name:      name,
			Cause:     eris.Wrap(err, "pipeline: write output"),
		}
	}
	r.complete(steps.WriteOutput, fmt.Sprintf("%d entries written", len(r.validated)))

	return &types.PipelineResult{
		RunID:          r.runID.String(),
		ProcessedFiles: names,
		Errors:         r.errs,
		OutputFile:     name,
		Status:         types.StatusFor(r.errs),
	}, nil
}

func (p *Pipeline) finish(ctx context.Context, r *run, result *types.PipelineResult) {
	r.log.Info("pipeline: run finished",
		zap.String("status", result.Status),
		zap.Int("errors", len(result.Errors)),
		zap.String("output", result.OutputFile))
	if p.deps.Recorder == nil {
		return
	}
	if err := p.deps.Recorder.CompleteRun(ctx, r.runID, result); err != nil {
		r.log.Warn("pipeline: failed to record run completion", zap.Error(err))
	}
}

// OutputName names the output document after the first requested blob
func OutputName(firstBlob string, now time.Time) string {
	base := baseName(firstBlob)
	if base == "" {
		base = "filing"
	}
	return fmt.Sprintf("%s-validated-output-%s.json", base, now.UTC().Format(OutputTimeLayout))
}

func baseName(name string) string {
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
