package rowfilter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jonathan/filing-validator/internal/storage"
	"github.com/jonathan/filing-validator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const container = "taxonomy"

func referenceWorkbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		require.NoError(t, err)
		values := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &values))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func newFilter(t *testing.T, files map[string][]byte) (*Filter, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	for name, data := range files {
		require.NoError(t, store.Put(context.Background(), container, name, data))
	}
	return New(store, container, nil), store
}

func filingRows() []types.Row {
	return []types.Row{
		types.RowOf("Concept Label", "Revenue", "Tag Value", 100),
		types.RowOf("Concept Label", " Costs ", "Tag Value", 40),
		types.RowOf("Concept Label", "Unknown", "Tag Value", 1),
		types.RowOf("Tag Value", 2),
	}
}

func TestFilterByTaxonomy(t *testing.T) {
	ref := referenceWorkbook(t, PresentationSheet, [][]any{
		{"Element", "Label"},
		{"uk:Revenue", " Revenue "},
		{"uk:Costs", "Costs"},
		{"uk:Blank", nil},
	})
	f, _ := newFilter(t, map[string][]byte{"frc-2023.xlsx": ref})

	matched, unmatched := f.FilterByTaxonomy(context.Background(), filingRows(), "frc-2023.xlsx")

	require.Len(t, matched, 2)
	assert.Equal(t, "Revenue", matched[0].GetString("Concept Label"))
	assert.Equal(t, " Costs ", matched[1].GetString("Concept Label"))
	require.Len(t, unmatched, 2)
	assert.Equal(t, "Unknown", unmatched[0].GetString("Concept Label"))
}

func TestFilterByTaxonomy_PassThrough(t *testing.T) {
	tests := []struct {
		name  string
		files map[string][]byte
	}{
		{"missing file", nil},
		{"corrupt file", map[string][]byte{"frc-2023.xlsx": []byte("nope")}},
		{"missing sheet", map[string][]byte{
			"frc-2023.xlsx": referenceWorkbook(t, "Definitions", [][]any{{"Label"}, {"Revenue"}}),
		}},
		{"missing column", map[string][]byte{
			"frc-2023.xlsx": referenceWorkbook(t, PresentationSheet, [][]any{{"Element"}, {"Revenue"}}),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newFilter(t, tt.files)
			rows := filingRows()

			matched, unmatched := f.FilterByTaxonomy(context.Background(), rows, "frc-2023.xlsx")
			assert.Equal(t, rows, matched)
			assert.Empty(t, unmatched)
		})
	}
}

func TestFilterByTaxonomy_CachesLabels(t *testing.T) {
	ref := referenceWorkbook(t, PresentationSheet, [][]any{{"Label"}, {"Revenue"}})
	f, store := newFilter(t, map[string][]byte{"frc-2023.xlsx": ref})
	ctx := context.Background()

	matched, _ := f.FilterByTaxonomy(ctx, filingRows(), "frc-2023.xlsx")
	require.Len(t, matched, 1)

	require.NoError(t, store.Put(ctx, container, "frc-2023.xlsx", []byte("replaced")))
	matched, _ = f.FilterByTaxonomy(ctx, filingRows(), "frc-2023.xlsx")
	assert.Len(t, matched, 1)
}

func TestFlagged(t *testing.T) {
	entry := Flagged(types.RowOf("Line Item Description", "Turnover", "Concept Label", "Unknown"))

	out, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"Concept Label":"Unknown","validation_result":[{"status":"FLAGGED FOR REVIEW","reason":"Concept Label not found in matched taxonomy file"}]}`,
		string(out))
	assert.Equal(t, []string{"Concept Label", "validation_result"}, entry.Keys())
}
