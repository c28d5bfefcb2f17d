package datasets

import "fmt"

// DataError reports malformed input data: missing required columns, an
// empty table, or unreadable CSV content. It is fatal to the pipeline.
type DataError struct {
	Msg string
	Err error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error: %s: %v", e.Msg, e.Err)
	}
	return "data error: " + e.Msg
}

func (e *DataError) Unwrap() error { return e.Err }

// ShapeError reports a tensor that violates the fixed-shape contract after
// normalization and tensorization. It indicates a bug upstream and is fatal.
type ShapeError struct {
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape error: want %s, got %s", e.Want, e.Got)
}
