package export

import (
	"encoding/json"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/vis2attr/internal/model"
)

// parquetRow is the columnar layout of a Row. Map-valued columns hold
// JSON objects keyed by field name.
type parquetRow struct {
	ItemID           string   `parquet:"item_id"`
	Timestamp        string   `parquet:"timestamp"`
	ProcessingTimeMS int64    `parquet:"processing_time_ms"`
	Success          bool     `parquet:"success"`
	Accepted         bool     `parquet:"accepted"`
	ConfidenceScore  float64  `parquet:"confidence_score"`
	Fields           []string `parquet:"fields"`
	Values           string   `parquet:"values"`
	Confidences      string   `parquet:"confidences"`
	Reasons          []string `parquet:"reasons"`
	FieldFlags       string   `parquet:"field_flags"`
	ErrorKind        string   `parquet:"error_kind"`
	Error            string   `parquet:"error"`
}

// WriteParquet saves rows to a Parquet file at path.
func WriteParquet(path string, rows []Row) error {
	out := make([]parquetRow, 0, len(rows))
	for _, r := range rows {
		pr, err := toParquet(r)
		if err != nil {
			return err
		}
		out = append(out, pr)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "parquet: create %s", path)
	}
	if err := parquet.Write(f, out); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "parquet: write %s", path)
	}
	return eris.Wrapf(f.Close(), "parquet: close %s", path)
}

// ReadParquet parses a file produced by WriteParquet.
func ReadParquet(path string) ([]Row, []string, error) {
	in, err := parquet.ReadFile[parquetRow](path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "parquet: read %s", path)
	}
	var (
		rows   = make([]Row, 0, len(in))
		fields []string
	)
	for _, pr := range in {
		r, err := fromParquet(pr)
		if err != nil {
			return nil, nil, err
		}
		if fields == nil && len(r.Fields) > 0 {
			fields = r.Fields
		}
		rows = append(rows, r)
	}
	return rows, fields, nil
}

func toParquet(r Row) (parquetRow, error) {
	pr := parquetRow{
		ItemID:           r.ItemID,
		Timestamp:        r.Timestamp.Format(time.RFC3339Nano),
		ProcessingTimeMS: r.ProcessingTimeMS,
		Success:          r.Success,
		Accepted:         r.Accepted,
		ConfidenceScore:  r.ConfidenceScore,
		Fields:           r.Fields,
		Reasons:          r.Reasons,
		ErrorKind:        r.ErrorKind,
		Error:            r.Error,
	}
	var err error
	if pr.Values, err = jsonColumn(r.Values); err != nil {
		return parquetRow{}, eris.Wrapf(err, "parquet: encode values for %s", r.ItemID)
	}
	if pr.Confidences, err = jsonColumn(r.Confidences); err != nil {
		return parquetRow{}, eris.Wrapf(err, "parquet: encode confidences for %s", r.ItemID)
	}
	if pr.FieldFlags, err = jsonColumn(r.FieldFlags); err != nil {
		return parquetRow{}, eris.Wrapf(err, "parquet: encode field flags for %s", r.ItemID)
	}
	return pr, nil
}

func fromParquet(pr parquetRow) (Row, error) {
	r := Row{
		ItemID:           pr.ItemID,
		ProcessingTimeMS: pr.ProcessingTimeMS,
		Success:          pr.Success,
		Accepted:         pr.Accepted,
		ConfidenceScore:  pr.ConfidenceScore,
		Fields:           pr.Fields,
		Reasons:          pr.Reasons,
		ErrorKind:        pr.ErrorKind,
		Error:            pr.Error,
	}
	if pr.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, pr.Timestamp)
		if err != nil {
			return Row{}, eris.Wrapf(err, "parquet: parse timestamp for %s", pr.ItemID)
		}
		r.Timestamp = ts
	}
	if pr.Values != "" {
		if err := json.Unmarshal([]byte(pr.Values), &r.Values); err != nil {
			return Row{}, eris.Wrapf(err, "parquet: decode values for %s", pr.ItemID)
		}
	}
	if pr.Confidences != "" {
		if err := json.Unmarshal([]byte(pr.Confidences), &r.Confidences); err != nil {
			return Row{}, eris.Wrapf(err, "parquet: decode confidences for %s", pr.ItemID)
		}
	}
	if pr.FieldFlags != "" {
		flags := map[string]model.FieldFlag{}
		if err := json.Unmarshal([]byte(pr.FieldFlags), &flags); err != nil {
			return Row{}, eris.Wrapf(err, "parquet: decode field flags for %s", pr.ItemID)
		}
		r.FieldFlags = flags
	}
	return r, nil
}

// jsonColumn encodes a map column; empty maps become "".
func jsonColumn[M ~map[string]V, V any](m M) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
