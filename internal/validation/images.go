package validation

import (
	"encoding/base64"

	"github.com/jonathan/filing-validator/internal/extraction"
	"github.com/jonathan/filing-validator/internal/types"
	"go.uber.org/zap"
)

// AttachPageImages returns copies of rows where each row whose Page Number names
// a rendered page carries that page as base64 PNG under page_image_base64.
// Input rows are not modified.
func AttachPageImages(rows []types.Row, images map[int][]byte, logger *zap.Logger) []types.Row {
	if len(images) == 0 {
		return rows
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	out := make([]types.Row, len(rows))
	for i, row := range rows {
		out[i] = row

		raw, ok := row.Get(extraction.ColumnPageNumber)
		if !ok || raw == nil {
			continue
		}
		page := extraction.NormalizePageNumber(raw)
		if page == nil {
			logger.Warn("validation: unusable page number", zap.Any("page_number", raw))
			continue
		}
		img, ok := images[*page]
		if !ok {
			continue
		}

		withImage := row.Clone()
		withImage.Set(extraction.ColumnImageBase64, base64.StdEncoding.EncodeToString(img))
		out[i] = withImage
	}
	return out
}
