package extraction

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/jonathan/filing-validator/internal/storage"
	"github.com/jonathan/filing-validator/internal/types"
	"go.uber.org/zap"
)

// RawContainer holds unprocessed uploads and is never read by the extractor
const RawContainer = "bronze"

// Extractor reads blobs from object storage and extracts their content
type Extractor struct {
	store    storage.Store
	renderer Renderer
	logger   *zap.Logger
}

// New creates an Extractor. A nil renderer disables page images.
func New(store storage.Store, renderer Renderer, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{store: store, renderer: renderer, logger: logger}
}

// Extract produces exactly one result for ref. It never returns an error:
// failures are recorded in the result's Error field, and fields populated
// before the failure are kept.
func (e *Extractor) Extract(ctx context.Context, ref types.BlobRef) (result types.ExtractionResult) {
	result.BlobName = ref.Name
	if ref.Name == "" {
		result.Error = "Blob missing 'name'"
		return result
	}
	container := ref.ContainerOrDefault()
	if container == RawContainer {
		result.Error = fmt.Sprintf("Blobs from '%s' container not allowed: %s", RawContainer, ref.Name)
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction: panic", zap.String("blob", ref.Name), zap.Any("panic", r))
			result.Error = fmt.Sprintf("Error processing blob %s: %v", ref.Name, r)
		}
	}()

	data, err := e.store.Get(ctx, container, ref.Name)
	if err != nil {
		result.Error = fmt.Sprintf("Error processing blob %s: %v", ref.Name, err)
		return result
	}

	switch strings.ToLower(path.Ext(ref.Name)) {
	case ".xlsx", ".xls":
		if err := e.extractWorkbook(data, &result); err != nil {
			result.Error = fmt.Sprintf("Error processing blob %s: %v", ref.Name, err)
		}
	case ".html":
		e.extractHTML(ctx, data, &result)
	default:
		e.logger.Debug("extraction: unsupported file type", zap.String("blob", ref.Name))
	}
	return result
}

func (e *Extractor) extractHTML(ctx context.Context, data []byte, result *types.ExtractionResult) {
	text, err := StatementOfCompliance(data)
	if err != nil {
		result.Error = fmt.Sprintf("Error extracting HTML content from %s: %v", result.BlobName, err)
		return
	}
	result.StatementText = text

	if e.renderer == nil {
		return
	}
	e.logger.Info("extraction: rendering page images", zap.String("blob", result.BlobName))
	images, err := e.renderer.Render(ctx, data)
	if err != nil {
		e.logger.Error("extraction: page rendering failed", zap.String("blob", result.BlobName), zap.Error(err))
		return
	}
	result.PageImages = images
}
