package manifest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// IndexingColumns is the fixed column set of the indexing CSV. The order and
// spelling are contractual; downstream tooling matches on the exact headers.
var IndexingColumns = []string{
	"File Name",
	"Classification",
	"Document Sub Type",
	"Quick Reference",
	"Document Date",
	"Expiry Date",
	"Offsite Location",
	"On-Premises Location",
	"Remarks",
	"Keywords",
	"Document Type",
	"Document SubType Internal",
	"Lifespan",
	"Category",
}

// ExportIndexingCSV writes the indexing manifest for a set of migrated
// entries. Missing metadata fields become empty cells, never dropped
// columns.
func ExportIndexingCSV(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating indexing csv %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(IndexingColumns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, e := range entries {
		m := e.Metadata
		fileName := m.FileName
		if fileName == "" {
			fileName = e.FileName
		}
		row := []string{
			fileName,
			m.Classification,
			m.DocumentSubType,
			m.QuickReference,
			m.DocumentDate,
			m.ExpiryDate,
			m.OffsiteLocation,
			m.OnPremisesLocation,
			m.Remarks,
			m.Keywords,
			m.DocumentType,
			m.DocumentSubTypeInternal,
			m.Lifespan,
			m.Category,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing csv row for %s: %w", e.JobID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing indexing csv %s: %w", path, err)
	}
	return f.Sync()
}
