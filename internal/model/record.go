package model

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// Field is one echoed input column.
type Field struct {
	Name  string
	Value string
}

// ErrorInfo is the error object carried by failure records.
type ErrorInfo struct {
	Type    string `json:"type"`
	Status  *int   `json:"status"`
	Message string `json:"message"`
}

// OutputRecord is one line of a success or error stream: the echoed input
// fields followed by either results/latency or error.
type OutputRecord struct {
	Row     int
	Query   string
	Fields  []Field
	OK      bool
	Results any
	Latency float64
	Error   *ErrorInfo
}

// BuildRecord composes the output record for row from outcome, echoing the
// given columns in order. Columns absent from the row echo as "".
func BuildRecord(row Row, echo []string, queryColumn string, o Outcome) OutputRecord {
	fields := make([]Field, 0, len(echo))
	for _, col := range echo {
		fields = append(fields, Field{Name: col, Value: row.Value(col)})
	}
	rec := OutputRecord{
		Row:    row.Index,
		Query:  row.Value(queryColumn),
		Fields: fields,
		OK:     o.OK,
	}
	if o.OK {
		rec.Results = o.Body
		rec.Latency = o.LatencySeconds()
		return rec
	}
	info := &ErrorInfo{Type: o.ErrorType(), Message: o.Message}
	if o.StatusCode != 0 {
		status := o.StatusCode
		info.Status = &status
	}
	rec.Error = info
	return rec
}

// MarshalJSON keeps echoed fields in column order, which a map would not.
func (r OutputRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, value any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := encodeJSON(key)
		if err != nil {
			return err
		}
		v, err := encodeJSON(value)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}
	for _, f := range r.Fields {
		if err := write(f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	if r.OK {
		if err := write("results", r.Results); err != nil {
			return nil, err
		}
		if err := write("latency", r.Latency); err != nil {
			return nil, err
		}
	} else {
		if err := write("error", r.Error); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// RoundLatency converts d to seconds rounded to 4 decimal places.
func RoundLatency(d time.Duration) float64 {
	return math.Round(d.Seconds()*1e4) / 1e4
}

// encodeJSON marshals v without HTML escaping and without the trailing newline
// json.Encoder appends.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
