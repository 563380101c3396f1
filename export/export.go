// Package export writes Agiloft contracts to CSV.
//
// An Exporter pages through the contract search endpoint and streams one CSV
// row per record, so exports of large knowledge bases never hold more than
// one page in memory.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/hjtapia74/agiloft-api-example/agiloft"
)

// DefaultPageSize is how many contracts one search call requests.
const DefaultPageSize = 100

// Logger is an interface for optional progress logging.
type Logger interface {
	Printf(format string, args ...any)
}

// Exporter pages through all contracts matching a query and writes them as
// CSV: a header row naming the fields, then one row per contract in field
// order.
type Exporter struct {
	// Client performs the searches.
	Client *agiloft.Client

	// Query narrows the export; empty exports every contract.
	Query string

	// Fields are the columns, in order. Defaults to
	// agiloft.DefaultContractFields.
	Fields []string

	// PageSize is the search page size. Defaults to DefaultPageSize.
	PageSize int

	// Logger, when set, receives per-page progress messages.
	Logger Logger
}

// Run performs the export. It returns the number of contracts written.
func (e *Exporter) Run(ctx context.Context, w io.Writer) (int, error) {
	fields := e.Fields
	if len(fields) == 0 {
		fields = agiloft.DefaultContractFields
	}
	pageSize := e.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	out := csv.NewWriter(w)
	if err := out.Write(fields); err != nil {
		return 0, fmt.Errorf("export: write header: %w", err)
	}

	total := 0
	for offset := 0; ; offset += pageSize {
		page, err := e.Client.SearchContracts(ctx, agiloft.SearchQuery{
			Query:  e.Query,
			Fields: fields,
			Offset: offset,
			Limit:  pageSize,
		})
		if err != nil {
			return total, fmt.Errorf("export: search at offset %d: %w", offset, err)
		}

		for _, record := range page {
			if err := out.Write(row(record, fields)); err != nil {
				return total, fmt.Errorf("export: write record: %w", err)
			}
			total++
		}

		if e.Logger != nil {
			e.Logger.Printf("export: wrote %d contracts (offset %d)", total, offset)
		}

		// A short page means the search is exhausted.
		if len(page) < pageSize {
			break
		}
	}

	out.Flush()
	if err := out.Error(); err != nil {
		return total, fmt.Errorf("export: flush: %w", err)
	}
	return total, nil
}

// row renders one record in field order. Missing fields become empty cells;
// non-string values use their default formatting.
func row(record agiloft.Record, fields []string) []string {
	cells := make([]string, len(fields))
	for i, f := range fields {
		v, ok := record[f]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			cells[i] = val
		case float64:
			// JSON numbers decode as float64; render integral values
			// without the trailing ".0".
			if val == float64(int64(val)) {
				cells[i] = fmt.Sprintf("%d", int64(val))
			} else {
				cells[i] = fmt.Sprintf("%g", val)
			}
		default:
			cells[i] = fmt.Sprintf("%v", val)
		}
	}
	return cells
}
