// Package query implements the small algebra of three node kinds the
// sppmon core renders into TSDB line protocol / InfluxQL text: Insert,
// Select (which also serves DELETE), and ContinuousQuery. Rendering is
// lossless and deterministic so that the schema catalog's reconciliation
// logic can compare a freshly rendered continuous query against the one
// the TSDB already has on file by plain string equality.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FieldType is one of the five scalar types a measurement field can hold.
type FieldType int

const (
	FieldInt FieldType = iota
	FieldFloat
	FieldBool
	FieldString
	FieldTimestamp
)

// Field is a single typed field value inside an Insert.
type Field struct {
	Type FieldType

	IntValue       int64
	FloatValue     float64
	BoolValue      bool
	StringValue    string
	TimestampValue int64 // unix seconds; FieldTimestamp renders this with the "i" suffix
}

func IntField(v int64) Field          { return Field{Type: FieldInt, IntValue: v} }
func FloatField(v float64) Field      { return Field{Type: FieldFloat, FloatValue: v} }
func BoolField(v bool) Field          { return Field{Type: FieldBool, BoolValue: v} }
func StringField(v string) Field      { return Field{Type: FieldString, StringValue: v} }
func TimestampField(v int64) Field    { return Field{Type: FieldTimestamp, TimestampValue: v} }

func (f Field) render() string {
	switch f.Type {
	case FieldInt:
		return strconv.FormatInt(f.IntValue, 10) + "i"
	case FieldFloat:
		return strconv.FormatFloat(f.FloatValue, 'f', -1, 64)
	case FieldBool:
		if f.BoolValue {
			return "true"
		}
		return "false"
	case FieldString:
		return escapeFieldString(f.StringValue)
	case FieldTimestamp:
		return strconv.FormatInt(f.TimestampValue, 10) + "i"
	default:
		return "null"
	}
}

// Insert is a single line-protocol point: a measurement, its tag set,
// its field set, and an optional second-precision timestamp.
type Insert struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]Field
	Timestamp   int64
	HasTime     bool
}

// Render formats the insert as one line-protocol line:
//
//	<measurement>[,<tagk=tagv>…] <fieldk=fieldv>[,…] [<ts>]
//
// Tag and field keys are rendered in sorted order so the same logical
// point always produces byte-identical line protocol, which keeps tests
// and idempotence checks deterministic.
func (ins Insert) Render() string {
	var b strings.Builder
	b.WriteString(escapeKey(ins.Measurement))

	tagKeys := make([]string, 0, len(ins.Tags))
	for k := range ins.Tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		b.WriteByte(',')
		b.WriteString(escapeKey(k))
		b.WriteByte('=')
		b.WriteString(escapeKey(ins.Tags[k]))
	}

	b.WriteByte(' ')
	fieldKeys := make([]string, 0, len(ins.Fields))
	for k := range ins.Fields {
		fieldKeys = append(fieldKeys, k)
	}
	sort.Strings(fieldKeys)
	for i, k := range fieldKeys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeKey(k))
		b.WriteByte('=')
		b.WriteString(ins.Fields[k].render())
	}

	if ins.HasTime {
		fmt.Fprintf(&b, " %d", ins.Timestamp)
	}
	return b.String()
}
