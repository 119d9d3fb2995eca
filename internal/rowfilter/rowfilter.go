// Package rowfilter splits filing rows by whether their concept label appears
// in a reference taxonomy workbook.
package rowfilter

import (
	"context"
	"strings"
	"sync"

	"github.com/jonathan/filing-validator/internal/storage"
	"github.com/jonathan/filing-validator/internal/types"
	"github.com/jonathan/filing-validator/internal/workbook"
	"go.uber.org/zap"
)

// Reference workbook layout
const (
	PresentationSheet = "Presentation"
	LabelColumn       = "Label"
	ConceptColumn     = "Concept Label"
)

// Flagged review entry
const (
	StatusFlagged = "FLAGGED FOR REVIEW"
	ReasonMissing = "Concept Label not found in matched taxonomy file"
)

// Filter loads taxonomy label sets from object storage. Label sets are cached
// per file for the lifetime of the Filter.
type Filter struct {
	store     storage.Store
	container string
	logger    *zap.Logger

	mu     sync.Mutex
	labels map[string]map[string]struct{}
}

// New creates a Filter reading reference workbooks from container
func New(store storage.Store, container string, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		store:     store,
		container: container,
		logger:    logger,
		labels:    make(map[string]map[string]struct{}),
	}
}

// FilterByTaxonomy partitions rows into those whose trimmed Concept Label is a
// label of the reference file and those that are not. Relative order is kept.
// If the reference file cannot be used, every row is returned as matched.
func (f *Filter) FilterByTaxonomy(ctx context.Context, rows []types.Row, taxonomyFile string) (matched, unmatched []types.Row) {
	labels, ok := f.labelSet(ctx, taxonomyFile)
	if !ok {
		return rows, nil
	}

	for _, row := range rows {
		concept := strings.TrimSpace(row.GetString(ConceptColumn))
		if _, hit := labels[concept]; hit {
			matched = append(matched, row)
		} else {
			unmatched = append(unmatched, row)
		}
	}

	f.logger.Info("rowfilter: rows matched",
		zap.String("taxonomy_file", taxonomyFile),
		zap.Int("matched", len(matched)))
	if len(unmatched) > 0 {
		f.logger.Warn("rowfilter: rows not found in presentation sheet",
			zap.String("taxonomy_file", taxonomyFile),
			zap.Int("unmatched", len(unmatched)))
	}
	return matched, unmatched
}

// Flagged builds the review entry recorded for a row whose concept label is unknown
func Flagged(row types.Row) types.Row {
	concept, _ := row.Get(ConceptColumn)
	return types.RowOf(
		ConceptColumn, concept,
		"validation_result", []types.Row{
			types.RowOf("status", StatusFlagged, "reason", ReasonMissing),
		},
	)
}

func (f *Filter) labelSet(ctx context.Context, taxonomyFile string) (map[string]struct{}, bool) {
	f.mu.Lock()
	cached, ok := f.labels[taxonomyFile]
	f.mu.Unlock()
	if ok {
		return cached, true
	}

	labels, ok := f.load(ctx, taxonomyFile)
	if !ok {
		return nil, false
	}

	f.mu.Lock()
	f.labels[taxonomyFile] = labels
	f.mu.Unlock()
	return labels, true
}

func (f *Filter) load(ctx context.Context, taxonomyFile string) (map[string]struct{}, bool) {
	log := f.logger.With(zap.String("taxonomy_file", taxonomyFile))

	data, err := f.store.Get(ctx, f.container, taxonomyFile)
	if err != nil {
		log.Error("rowfilter: failed to read taxonomy file", zap.Error(err))
		return nil, false
	}

	wb, err := workbook.Open(data)
	if err != nil {
		log.Error("rowfilter: failed to open taxonomy file", zap.Error(err))
		return nil, false
	}
	defer func() { _ = wb.Close() }()

	if !wb.HasSheet(PresentationSheet) {
		log.Warn("rowfilter: presentation sheet not found")
		return nil, false
	}
	table, err := wb.Sheet(PresentationSheet)
	if err != nil {
		log.Error("rowfilter: failed to read presentation sheet", zap.Error(err))
		return nil, false
	}
	if _, ok := table.Column(LabelColumn); !ok {
		log.Warn("rowfilter: label column not found in presentation sheet")
		return nil, false
	}

	labels := make(map[string]struct{})
	for _, label := range table.Strings(LabelColumn) {
		labels[strings.TrimSpace(label)] = struct{}{}
	}
	return labels, true
}
