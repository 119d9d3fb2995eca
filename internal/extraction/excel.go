package extraction

import (
	"errors"

	"github.com/jonathan/filing-validator/internal/types"
	"github.com/jonathan/filing-validator/internal/workbook"
	"go.uber.org/zap"
)

// Sheet and column names read from filing workbooks
const (
	SheetFilingDetails     = "Filing Details"
	SheetFilingInformation = "Filing Information"

	ColumnLineItem    = "Line Item Description"
	ColumnConcept     = "Concept Label"
	ColumnComment     = "Comment Text"
	ColumnDimensions  = "Dimensions"
	ColumnTagValue    = "Tag Value"
	ColumnPageNumber  = "Page Number"
	ColumnPeriod      = "Period"
	ColumnImageBase64 = "page_image_base64"
)

// DetailColumns are read from the Filing Details sheet, in output order
var DetailColumns = []string{
	ColumnLineItem,
	ColumnConcept,
	ColumnComment,
	ColumnDimensions,
	ColumnTagValue,
	ColumnPageNumber,
}

// extractWorkbook fills the workbook fields of result. Fields set before an
// error is returned stay set.
func (e *Extractor) extractWorkbook(data []byte, result *types.ExtractionResult) error {
	wb, err := workbook.Open(data)
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()

	details, err := wb.Sheet(SheetFilingDetails)
	if err != nil {
		if errors.Is(err, workbook.ErrSheetNotFound) {
			return &WorkbookError{Sheet: SheetFilingDetails, Available: wb.SheetNames(), Message: "sheet not found"}
		}
		return &WorkbookError{Sheet: SheetFilingDetails, Message: "unreadable", Cause: err}
	}
	if missing := details.MissingColumns(DetailColumns...); len(missing) > 0 {
		return &WorkbookError{Sheet: SheetFilingDetails, Missing: missing, Message: "missing required columns"}
	}

	rows := make([]types.Row, 0, len(details.Rows))
	for _, row := range details.Records(DetailColumns...) {
		if row.IsBlank() {
			continue
		}
		raw, _ := row.Get(ColumnPageNumber)
		if page := NormalizePageNumber(raw); page != nil {
			row.Set(ColumnPageNumber, *page)
		} else {
			row.Set(ColumnPageNumber, nil)
		}
		rows = append(rows, row)
	}
	result.ExcelRows = rows

	result.UniquePeriods = uniquePeriods(details)
	e.logger.Info("extraction: periods read",
		zap.String("blob", result.BlobName),
		zap.Strings("periods", result.UniquePeriods))

	if !wb.HasSheet(SheetFilingInformation) {
		e.logger.Warn("extraction: 'Filing Information' sheet missing", zap.String("blob", result.BlobName))
		return nil
	}
	info, err := wb.Sheet(SheetFilingInformation)
	if err != nil {
		return &WorkbookError{Sheet: SheetFilingInformation, Message: "unreadable", Cause: err}
	}
	var taxonomyRows []types.Row
	for _, row := range info.Records() {
		if !row.IsBlank() {
			taxonomyRows = append(taxonomyRows, row)
		}
	}
	if len(taxonomyRows) == 0 {
		e.logger.Warn("extraction: 'Filing Information' sheet is empty", zap.String("blob", result.BlobName))
		return nil
	}
	result.TaxonomyRows = taxonomyRows
	return nil
}

// uniquePeriods returns the distinct non-empty Period values in first-seen order
func uniquePeriods(details *workbook.Table) []string {
	values := details.Strings(ColumnPeriod)
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
