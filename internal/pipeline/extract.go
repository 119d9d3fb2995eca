package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/filing-validator/internal/types"
)

// extractAll extracts every blob with at most MaxWorkers in flight. Results are
// returned in completion order, exactly one per blob. A failing or panicking
// extraction never affects its siblings.
func (p *Pipeline) extractAll(ctx context.Context, blobs []types.BlobRef, log *zap.Logger) []types.ExtractionResult {
	results := make(chan types.ExtractionResult, len(blobs))

	go func() {
		var g errgroup.Group
		g.SetLimit(p.opts.MaxWorkers)
		for _, ref := range blobs {
			g.Go(func() error {
				results <- p.extractOne(ctx, ref)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	out := make([]types.ExtractionResult, 0, len(blobs))
	for res := range results {
		log.Info("pipeline: blob extracted",
			zap.String("blob", res.BlobName),
			zap.Int("rows", len(res.ExcelRows)),
			zap.Int("taxonomy_rows", len(res.TaxonomyRows)),
			zap.Int("page_images", len(res.PageImages)),
			zap.String("error", res.Error))
		out = append(out, res)
	}
	return out
}

func (p *Pipeline) extractOne(ctx context.Context, ref types.BlobRef) (res types.ExtractionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = types.ExtractionResult{
				BlobName: ref.Name,
				Error:    fmt.Sprintf("Error processing blob %s: %v", ref.Name, rec),
			}
		}
	}()
	return p.extractor.Extract(ctx, ref)
}
