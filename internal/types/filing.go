package types

// DefaultContainer is the container a blob reference falls back to when none is given
const DefaultContainer = "silver"

// BlobRef identifies a source file in object storage
type BlobRef struct {
	Name      string `json:"name"`
	Container string `json:"container,omitempty"`
}

// ContainerOrDefault returns the blob's container, or DefaultContainer when unset
func (b BlobRef) ContainerOrDefault() string {
	if b.Container == "" {
		return DefaultContainer
	}
	return b.Container
}

// ExtractionResult is the normalized content pulled out of a single blob.
// One is produced per requested blob, whether extraction succeeded or not.
type ExtractionResult struct {
	BlobName      string         `json:"blob_name"`
	ExcelRows     []Row          `json:"excel_rows"`
	TaxonomyRows  []Row          `json:"taxonomy_rows"`
	UniquePeriods []string       `json:"unique_periods"`
	StatementText string         `json:"statement_text,omitempty"`
	PageImages    map[int][]byte `json:"-"`
	Error         string         `json:"error,omitempty"`
}

// HasRows reports whether the extraction produced any filing detail rows
func (r *ExtractionResult) HasRows() bool {
	return len(r.ExcelRows) > 0
}

// Taxonomy families recognised by the matcher
const (
	TaxonomyFRS101 = "frs-101"
	TaxonomyFRS102 = "frs-102"
	TaxonomyIFRS   = "ifrs"
)

// Jurisdictions recognised by the matcher
const (
	JurisdictionUK      = "uk"
	JurisdictionIreland = "ireland"
)

// TaxonomyMatch records how a filing was classified and which reference file was picked.
// TaxonomyType and Jurisdiction fall back to the raw lowercase taxonomy name when no keyword applies.
type TaxonomyMatch struct {
	TaxonomyName string `json:"taxonomy_name"`
	TaxonomyType string `json:"taxonomy_type"`
	Jurisdiction string `json:"jurisdiction"`
	MatchedFile  string `json:"matched_file,omitempty"`
	Score        int    `json:"score"`
}

// Found reports whether a reference file was selected
func (m *TaxonomyMatch) Found() bool {
	return m != nil && m.MatchedFile != ""
}
