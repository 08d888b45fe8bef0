package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/meridian-gov/meridian/internal/ledger"
)

var csvHeader = []string{
	"sequence_no", "timestamp", "actor_id", "actor_role", "action",
	"resource_type", "resource_id", "decision", "reason", "field_diff",
	"prev_hash", "record_hash", "erased",
}

// CSVExporter streams ledger records as CSV for compliance handover.
type CSVExporter struct{}

// WriteCSV writes the header row and then every record the source
// yields, one row at a time. Records are never accumulated: a
// multi-year export stays flat in memory.
func (CSVExporter) WriteCSV(w io.Writer, source func(fn func(ledger.Record) error) error) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	if err := source(func(rec ledger.Record) error {
		return cw.Write(csvRow(rec))
	}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(rec ledger.Record) []string {
	return []string{
		strconv.FormatInt(rec.SequenceNo, 10),
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(rec.ActorID, 10),
		rec.ActorRole,
		rec.Action,
		rec.ResourceType,
		strconv.FormatInt(rec.ResourceID, 10),
		rec.Decision,
		rec.Reason,
		string(rec.FieldDiff),
		rec.PrevHash,
		rec.RecordHash,
		strconv.FormatBool(rec.Erased),
	}
}
