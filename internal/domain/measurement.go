package domain

import (
	"bytes"
	"encoding/csv"
	"strings"
	"time"
)

// TimestampLayout is the format of the first column of every record.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// TimestampColumn is the header name of the first column.
const TimestampColumn = "timestamp"

// Measurement is one sensor reading. It is created by the sampler and
// serialized immediately; it is never mutated after it has been written.
type Measurement struct {
	// Time is when the reading was taken.
	Time time.Time

	// Fields holds the sensor-specific values in header order.
	Fields []string
}

// NewMeasurement creates a measurement, copying fields so later changes by the
// caller cannot leak into a written record.
func NewMeasurement(t time.Time, fields ...string) Measurement {
	f := make([]string, len(fields))
	copy(f, fields)
	return Measurement{Time: t, Fields: f}
}

// Record returns the CSV columns of the measurement, timestamp first.
func (m Measurement) Record() []string {
	rec := make([]string, 0, len(m.Fields)+1)
	rec = append(rec, m.Time.Format(TimestampLayout))
	return append(rec, m.Fields...)
}

// EncodeRecord renders one CSV line including the trailing newline.
func EncodeRecord(columns []string) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(columns)
	w.Flush()
	return buf.Bytes()
}

// HeaderRow returns the full header for a sensor's columns.
func HeaderRow(columns []string) []string {
	if len(columns) > 0 && strings.EqualFold(columns[0], TimestampColumn) {
		return columns
	}
	return append([]string{TimestampColumn}, columns...)
}

// DeviceIdentity identifies the device and sensor to the collection server.
// It is set at process start and read-only afterwards.
type DeviceIdentity struct {
	Hash   string
	Sensor string
}
