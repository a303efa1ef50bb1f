// Package export writes pairwise distances as Apache Arrow IPC files for
// downstream analysis in notebooks and dataframe tools.
package export

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/tbc/internal/nullstats"
	"github.com/nvandessel/tbc/internal/spkd"
)

// ErrSchemaMismatch is returned when an Arrow file does not carry the
// distance columns.
var ErrSchemaMismatch = errors.New("arrow file does not match the distance schema")

// DistanceRow is one pairwise distance in the exported table.
type DistanceRow struct {
	UnitIndex int
	UnitID    string
	TrialI    int
	TrialJ    int
	Distance  float64
}

// DistanceSchema is the Arrow schema of exported distance tables. A NaN
// distance is written as null.
var DistanceSchema = arrow.NewSchema([]arrow.Field{
	{Name: "unit_index", Type: arrow.PrimitiveTypes.Int32},
	{Name: "unit_id", Type: arrow.BinaryTypes.String},
	{Name: "trial_i", Type: arrow.PrimitiveTypes.Int32},
	{Name: "trial_j", Type: arrow.PrimitiveTypes.Int32},
	{Name: "distance", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

// ReadAtSeeker is what the Arrow file reader needs from its input.
type ReadAtSeeker interface {
	io.Reader
	io.Seeker
	io.ReaderAt
}

// RowsFromSummary flattens the raw distances kept in a population summary.
// Trial indices follow the (i, j) order in which pairs were generated.
func RowsFromSummary(summary nullstats.PopulationSummary) []DistanceRow {
	var rows []DistanceRow
	for u, dists := range summary.Distances {
		id := ""
		if u < len(summary.UnitIDs) {
			id = summary.UnitIDs[u]
		}
		idx := spkd.PairIndices(spkd.TrialsForPairs(len(dists)))
		for p, d := range dists {
			row := DistanceRow{UnitIndex: u, UnitID: id, Distance: d}
			if p < len(idx) {
				row.TrialI, row.TrialJ = idx[p][0], idx[p][1]
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// WriteDistancesArrow writes rows as a single-record Arrow IPC file.
func WriteDistancesArrow(w io.Writer, rows []DistanceRow) error {
	mem := memory.NewGoAllocator()

	b := array.NewRecordBuilder(mem, DistanceSchema)
	defer b.Release()

	unitIdx := b.Field(0).(*array.Int32Builder)
	unitID := b.Field(1).(*array.StringBuilder)
	trialI := b.Field(2).(*array.Int32Builder)
	trialJ := b.Field(3).(*array.Int32Builder)
	dist := b.Field(4).(*array.Float64Builder)

	for _, r := range rows {
		unitIdx.Append(int32(r.UnitIndex))
		unitID.Append(r.UnitID)
		trialI.Append(int32(r.TrialI))
		trialJ.Append(int32(r.TrialJ))
		if math.IsNaN(r.Distance) {
			dist.AppendNull()
		} else {
			dist.Append(r.Distance)
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(DistanceSchema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}

// ReadDistancesArrow reads every record of an Arrow IPC file written by
// WriteDistancesArrow. Null distances come back as NaN.
func ReadDistancesArrow(r ReadAtSeeker) ([]DistanceRow, error) {
	mem := memory.NewGoAllocator()

	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("opening arrow file: %w", err)
	}
	defer fr.Close()

	if !fr.Schema().Equal(DistanceSchema) {
		return nil, fmt.Errorf("%w: got %s", ErrSchemaMismatch, fr.Schema())
	}

	rows := []DistanceRow{}
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.RecordAt(i)
		if err != nil {
			return nil, fmt.Errorf("reading arrow record %d: %w", i, err)
		}
		rows = appendRows(rows, rec)
		rec.Release()
	}
	return rows, nil
}

func appendRows(rows []DistanceRow, rec arrow.Record) []DistanceRow {
	unitIdx := rec.Column(0).(*array.Int32)
	unitID := rec.Column(1).(*array.String)
	trialI := rec.Column(2).(*array.Int32)
	trialJ := rec.Column(3).(*array.Int32)
	dist := rec.Column(4).(*array.Float64)

	for j := 0; j < int(rec.NumRows()); j++ {
		d := math.NaN()
		if !dist.IsNull(j) {
			d = dist.Value(j)
		}
		rows = append(rows, DistanceRow{
			UnitIndex: int(unitIdx.Value(j)),
			UnitID:    unitID.Value(j),
			TrialI:    int(trialI.Value(j)),
			TrialJ:    int(trialJ.Value(j)),
			Distance:  d,
		})
	}
	return rows
}

// WriteDistancesFile writes rows to an Arrow file at path.
func WriteDistancesFile(path string, rows []DistanceRow) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteDistancesArrow(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadDistancesFile reads an Arrow distance file from path.
func ReadDistancesFile(path string) ([]DistanceRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return ReadDistancesArrow(f)
}
