package datasets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// This file loads detector event tables from CSV and groups their rows by
// source identity.
//
// The table layout is one row per detector hit:
//
//	Source_X, Source_Y, Scatter_X, Scatter_Y, Energy, Absorb_X, Absorb_Y, Energy_Abs
//
// (Source_X, Source_Y) is the regression target and the grouping key; the
// remaining six numeric columns are the per-event features. Column order in
// the file does not matter: indices are discovered from the header of the
// first file. Missing or unparseable numeric cells become 0.
//
// Loading is lazy in the same spirit as the rest of the repository's CSV
// handling: the constructor only scans the files to build a per-group row
// index, and group feature matrices are read on demand.

// FeatureCount is the number of numeric features per detector hit.
const FeatureCount = 6

// featureColumns lists the feature columns in tensor channel order.
var featureColumns = [FeatureCount]string{
	"scatter_x", "scatter_y", "energy", "absorb_x", "absorb_y", "energy_abs",
}

// requiredColumns is the full set of columns an event table must carry.
var requiredColumns = []string{
	"source_x", "source_y",
	"scatter_x", "scatter_y", "energy", "absorb_x", "absorb_y", "energy_abs",
}

// EventRecord is a single detector hit: scatter position and deposited
// energy plus absorption position and absorbed energy.
type EventRecord struct {
	ScatterX  float32
	ScatterY  float32
	Energy    float32
	AbsorbX   float32
	AbsorbY   float32
	EnergyAbs float32
}

// Features returns the record's numeric fields in channel order.
func (r EventRecord) Features() []float32 {
	return []float32{r.ScatterX, r.ScatterY, r.Energy, r.AbsorbX, r.AbsorbY, r.EnergyAbs}
}

// SourceID identifies one source group by its true origin coordinates.
type SourceID struct {
	X float32
	Y float32
}

// Label returns the ground-truth coordinate pair for this source.
func (s SourceID) Label() []float32 { return []float32{s.X, s.Y} }

func (s SourceID) String() string { return sourceKey(s.X, s.Y) }

// groupLocation records where one source group's rows live on disk.
type groupLocation struct {
	fileIdx int
	rows    []int // row indices within the file, in file order
}

// EventSource reads detector event CSV files matching a glob pattern and
// exposes their rows grouped by (Source_X, Source_Y).
type EventSource struct {
	// Pattern used to find CSV files.
	Pattern string

	csvPaths []string
	colIndex map[string]int

	// sources holds the distinct group IDs in first-seen order, so runs
	// over the same files enumerate groups deterministically.
	sources   []SourceID
	locations map[string]groupLocation
}

// NewEventSource opens the event table(s) matching pattern, validates the
// schema and indexes rows by source identity.
func NewEventSource(pattern string) (*EventSource, error) {
	csvPaths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &DataError{Msg: fmt.Sprintf("bad glob pattern %s", pattern), Err: err}
	}
	if len(csvPaths) == 0 {
		return nil, &DataError{Msg: "no CSV files found matching pattern: " + pattern}
	}
	sort.Strings(csvPaths)

	es := &EventSource{
		Pattern:   pattern,
		csvPaths:  csvPaths,
		locations: make(map[string]groupLocation),
	}
	if err := es.initializeColumns(); err != nil {
		return nil, err
	}
	if err := es.buildGroupIndex(); err != nil {
		return nil, err
	}
	if len(es.sources) == 0 {
		return nil, &DataError{Msg: "event table is empty"}
	}
	return es, nil
}

// initializeColumns reads the first CSV header to determine column indices
// and verifies every required column is present.
func (es *EventSource) initializeColumns() error {
	file, err := os.Open(es.csvPaths[0])
	if err != nil {
		return &DataError{Msg: "open first CSV " + es.csvPaths[0], Err: err}
	}
	defer file.Close()

	header, err := csv.NewReader(file).Read()
	if err != nil {
		return &DataError{Msg: "read header", Err: err}
	}

	es.colIndex = make(map[string]int)
	for i, col := range header {
		es.colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := es.colIndex[col]; !ok {
			return &DataError{Msg: fmt.Sprintf("required column %q not found in CSV", col)}
		}
	}
	return nil
}

// buildGroupIndex scans every file once, recording for each distinct
// source the file and row indices that belong to it.
func (es *EventSource) buildGroupIndex() error {
	sxCol := es.colIndex["source_x"]
	syCol := es.colIndex["source_y"]

	for fileIdx, path := range es.csvPaths {
		file, err := os.Open(path)
		if err != nil {
			return &DataError{Msg: "open " + path, Err: err}
		}
		reader := csv.NewReader(file)
		if _, err := reader.Read(); err != nil { // header
			file.Close()
			return &DataError{Msg: "read header of " + path, Err: err}
		}
		rowIdx := 0
		for {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				file.Close()
				return &DataError{Msg: fmt.Sprintf("read row %d of %s", rowIdx, path), Err: err}
			}
			id := SourceID{X: parseFloat32(record[sxCol]), Y: parseFloat32(record[syCol])}
			key := id.String()
			loc, seen := es.locations[key]
			if !seen {
				es.sources = append(es.sources, id)
				loc = groupLocation{fileIdx: fileIdx}
			} else if loc.fileIdx != fileIdx {
				// Groups never span files; all rows of a source are
				// expected in the file where it first appeared.
				file.Close()
				return &DataError{Msg: fmt.Sprintf("source %s appears in multiple files", key)}
			}
			loc.rows = append(loc.rows, rowIdx)
			es.locations[key] = loc
			rowIdx++
		}
		file.Close()
	}
	return nil
}

// NumGroups returns the number of distinct source groups.
func (es *EventSource) NumGroups() int { return len(es.sources) }

// Sources returns the distinct source IDs in first-seen order. The
// returned slice is owned by the EventSource and must not be mutated.
func (es *EventSource) Sources() []SourceID { return es.sources }

// GroupFeatures loads one source group's feature matrix, shape
// (rows, FeatureCount), preserving the row order of the source table.
// A group with zero rows cannot occur here (a group exists only because
// at least one row referenced it), but callers tolerate empty matrices.
func (es *EventSource) GroupFeatures(id SourceID) ([][]float32, error) {
	loc, ok := es.locations[id.String()]
	if !ok {
		return nil, &DataError{Msg: "unknown source group " + id.String()}
	}

	file, err := os.Open(es.csvPaths[loc.fileIdx])
	if err != nil {
		return nil, &DataError{Msg: "open " + es.csvPaths[loc.fileIdx], Err: err}
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil { // header
		return nil, &DataError{Msg: "read header", Err: err}
	}

	wanted := make(map[int]int, len(loc.rows)) // file row -> output row
	for outRow, fileRow := range loc.rows {
		wanted[fileRow] = outRow
	}

	features := make([][]float32, len(loc.rows))
	rowIdx := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &DataError{Msg: fmt.Sprintf("read row %d", rowIdx), Err: err}
		}
		if outRow, ok := wanted[rowIdx]; ok {
			row := make([]float32, FeatureCount)
			for c, col := range featureColumns {
				row[c] = parseFloat32(record[es.colIndex[col]])
			}
			features[outRow] = row
		}
		rowIdx++
	}
	return features, nil
}

// GroupRecords loads one source group as typed EventRecords, in table order.
func (es *EventSource) GroupRecords(id SourceID) ([]EventRecord, error) {
	features, err := es.GroupFeatures(id)
	if err != nil {
		return nil, err
	}
	records := make([]EventRecord, len(features))
	for i, f := range features {
		records[i] = EventRecord{
			ScatterX: f[0], ScatterY: f[1], Energy: f[2],
			AbsorbX: f[3], AbsorbY: f[4], EnergyAbs: f[5],
		}
	}
	return records, nil
}

// GroupSize returns the number of event rows owned by the given source.
func (es *EventSource) GroupSize(id SourceID) int {
	return len(es.locations[id.String()].rows)
}
