package pipeline

// Options tunes a Pipeline
type Options struct {
	// MaxWorkers bounds concurrent blob extraction
	MaxWorkers int
	// BatchSize is the number of rows per model request
	BatchSize int
	// TaxonomyContainer holds reference taxonomy workbooks
	TaxonomyContainer string
	// ResultsContainer receives the validated output document
	ResultsContainer string

	MatchTaxonomy       bool
	AttachImages        bool
	ValidatePeriods     bool
	ValidateMatchedRows bool
}

// DefaultOptions returns the standard settings
func DefaultOptions() Options {
	return Options{
		MaxWorkers:          8,
		BatchSize:           10,
		TaxonomyContainer:   "taxonomy",
		ResultsContainer:    "gold",
		MatchTaxonomy:       true,
		AttachImages:        true,
		ValidatePeriods:     true,
		ValidateMatchedRows: true,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxWorkers < 1 {
		o.MaxWorkers = d.MaxWorkers
	}
	if o.BatchSize < 1 {
		o.BatchSize = d.BatchSize
	}
	if o.TaxonomyContainer == "" {
		o.TaxonomyContainer = d.TaxonomyContainer
	}
	if o.ResultsContainer == "" {
		o.ResultsContainer = d.ResultsContainer
	}
	return o
}
