// Package export writes and reads predictions files: one row per item with
// per-field values, confidences and decision flags.
package export

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vis2attr/internal/model"
)

// Fixed columns around the per-field block.
const (
	ColItemID          = "item_id"
	ColTimestamp       = "timestamp"
	ColProcessingTime  = "processing_time_ms"
	ColSuccess         = "success"
	ColAccepted        = "accepted"
	ColConfidenceScore = "confidence_score"
	ColReasons         = "reasons"
	ColFieldFlags      = "field_flags"
	ColErrorKind       = "error_kind"
	ColError           = "error"

	valueSuffix      = "_value"
	confidenceSuffix = "_confidence"
	listSep          = "; "
)

// Row is the flat output record for one item.
type Row struct {
	ItemID           string                     `json:"item_id"`
	Timestamp        time.Time                  `json:"timestamp"`
	ProcessingTimeMS int64                      `json:"processing_time_ms"`
	Success          bool                       `json:"success"`
	Accepted         bool                       `json:"accepted"`
	ConfidenceScore  float64                    `json:"confidence_score"`
	Fields           []string                   `json:"fields"`
	Values           map[string]any             `json:"values,omitempty"`
	Confidences      map[string]float64         `json:"confidences,omitempty"`
	Reasons          []string                   `json:"reasons,omitempty"`
	FieldFlags       map[string]model.FieldFlag `json:"field_flags,omitempty"`
	ErrorKind        string                     `json:"error_kind,omitempty"`
	Error            string                     `json:"error,omitempty"`
}

// FromResult flattens an item result. fields fixes the column order; a
// failed result leaves the per-field block empty.
func FromResult(res model.ItemResult, fields []string) Row {
	row := Row{
		ItemID:           res.ItemID,
		Timestamp:        res.StartedAt.UTC(),
		ProcessingTimeMS: res.ProcessingTime.Milliseconds(),
		Success:          res.Success,
		Accepted:         res.Accepted(),
		Fields:           slices.Clone(fields),
		ErrorKind:        string(res.ErrorKind),
		Error:            res.Error,
	}
	if res.Record != nil {
		row.Values = make(map[string]any, len(fields))
		row.Confidences = make(map[string]float64, len(fields))
		for _, f := range fields {
			row.Values[f] = res.Record.Data[f]
			row.Confidences[f] = res.Record.Confidences[f]
		}
	}
	if res.Decision != nil {
		row.ConfidenceScore = res.Decision.ConfidenceScore
		row.FieldFlags = make(map[string]model.FieldFlag, len(res.Decision.FieldFlags))
		for f, flag := range res.Decision.FieldFlags {
			row.FieldFlags[f] = flag
		}
		for _, r := range res.Decision.Reasons {
			row.Reasons = append(row.Reasons, r.Message)
		}
	}
	return row
}

// FromResults flattens results in order.
func FromResults(results []model.ItemResult, fields []string) []Row {
	rows := make([]Row, len(results))
	for i, res := range results {
		rows[i] = FromResult(res, fields)
	}
	return rows
}

// Header returns the column names for fields.
func Header(fields []string) []string {
	h := []string{ColItemID, ColTimestamp, ColProcessingTime, ColSuccess, ColAccepted, ColConfidenceScore}
	for _, f := range fields {
		h = append(h, f+valueSuffix)
	}
	for _, f := range fields {
		h = append(h, f+confidenceSuffix)
	}
	return append(h, ColReasons, ColFieldFlags, ColErrorKind, ColError)
}

// Record renders the row as cells aligned with Header(fields).
func (r Row) Record(fields []string) []string {
	rec := []string{
		r.ItemID,
		r.Timestamp.Format(time.RFC3339),
		strconv.FormatInt(r.ProcessingTimeMS, 10),
		strconv.FormatBool(r.Success),
		strconv.FormatBool(r.Accepted),
		formatFloat(r.ConfidenceScore),
	}
	for _, f := range fields {
		rec = append(rec, cellValue(r.Values[f]))
	}
	for _, f := range fields {
		if c, ok := r.Confidences[f]; ok && r.Success {
			rec = append(rec, formatFloat(c))
		} else {
			rec = append(rec, "")
		}
	}
	return append(rec,
		strings.Join(r.Reasons, listSep),
		r.flagString(fields),
		r.ErrorKind,
		r.Error,
	)
}

func (r Row) flagString(fields []string) string {
	parts := make([]string, 0, len(r.FieldFlags))
	for _, f := range fields {
		if flag, ok := r.FieldFlags[f]; ok {
			parts = append(parts, f+"="+string(flag))
		}
	}
	return strings.Join(parts, listSep)
}

// cellValue renders strings verbatim and everything else as JSON.
func cellValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

// fieldsFromHeader recovers the schema fields from a header row.
func fieldsFromHeader(header []string) []string {
	var fields []string
	for _, h := range header {
		if name, ok := strings.CutSuffix(h, valueSuffix); ok {
			fields = append(fields, name)
		}
	}
	return fields
}

// parseRecord rebuilds a Row from cells laid out per header.
func parseRecord(header, rec []string, fields []string) (Row, error) {
	col := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(rec) {
			col[h] = rec[i]
		}
	}

	row := Row{
		ItemID:    col[ColItemID],
		Fields:    slices.Clone(fields),
		ErrorKind: col[ColErrorKind],
		Error:     col[ColError],
	}
	var err error
	if ts := col[ColTimestamp]; ts != "" {
		if row.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return Row{}, eris.Wrapf(err, "export: parse timestamp for %s", row.ItemID)
		}
	}
	if v := col[ColProcessingTime]; v != "" {
		if row.ProcessingTimeMS, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Row{}, eris.Wrapf(err, "export: parse processing time for %s", row.ItemID)
		}
	}
	row.Success, _ = strconv.ParseBool(col[ColSuccess])
	row.Accepted, _ = strconv.ParseBool(col[ColAccepted])
	if v := col[ColConfidenceScore]; v != "" {
		if row.ConfidenceScore, err = strconv.ParseFloat(v, 64); err != nil {
			return Row{}, eris.Wrapf(err, "export: parse confidence score for %s", row.ItemID)
		}
	}

	if row.Success {
		row.Values = make(map[string]any, len(fields))
		row.Confidences = make(map[string]float64, len(fields))
		for _, f := range fields {
			row.Values[f] = col[f+valueSuffix]
			c := col[f+confidenceSuffix]
			if c == "" {
				continue
			}
			if row.Confidences[f], err = strconv.ParseFloat(c, 64); err != nil {
				return Row{}, eris.Wrapf(err, "export: parse %s confidence for %s", f, row.ItemID)
			}
		}
	}

	if v := col[ColReasons]; v != "" {
		row.Reasons = strings.Split(v, listSep)
	}
	if v := col[ColFieldFlags]; v != "" {
		row.FieldFlags = make(map[string]model.FieldFlag)
		for _, pair := range strings.Split(v, listSep) {
			name, flag, ok := strings.Cut(pair, "=")
			if !ok {
				return Row{}, eris.Errorf("export: malformed field flag %q for %s", pair, row.ItemID)
			}
			row.FieldFlags[name] = model.FieldFlag(flag)
		}
	}
	return row, nil
}
