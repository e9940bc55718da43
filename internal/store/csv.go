package store

import (
	"encoding/csv"
	"io"
	"strconv"

	"sketchpad/internal/sample"
)

// CSVHeader is the fixed header row of ExportCSV.
var CSVHeader = []string{"loudness", "pitch", "brightness", "roughness", "y1", "y2", "y3", "y4", "shape"}

// ExportCSV writes one row per sample, in insertion order.
func (s *Store) ExportCSV(w io.Writer) error {
	return WriteCSV(w, s.Samples())
}

// WriteCSV writes samples with the CSVHeader. Floats use the shortest
// representation that round-trips.
func WriteCSV(w io.Writer, samples []sample.TrainingSample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	row := make([]string, len(CSVHeader))
	for _, ts := range samples {
		for i, v := range ts.XS.Values() {
			row[i] = formatFloat(v)
		}
		for i, v := range ts.YS.Continuous() {
			row[sample.FeatureDim+i] = formatFloat(v)
		}
		row[len(row)-1] = strconv.Itoa(ts.YS.Shape)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
