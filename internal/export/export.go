package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Format names a predictions file layout.
type Format string

// Supported formats.
const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

const sheetName = "predictions"

// FormatFromPath infers the format from the file extension, defaulting to CSV.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".parquet":
		return FormatParquet
	default:
		return FormatCSV
	}
}

// WriteFile writes rows to path in format, creating parent directories.
func WriteFile(path string, format Format, fields []string, rows []Row) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "export: create dir %s", dir)
		}
	}
	switch format {
	case FormatXLSX:
		return WriteXLSX(path, fields, rows)
	case FormatParquet:
		return WriteParquet(path, rows)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	switch format {
	case FormatCSV, "":
		err = WriteCSV(f, fields, rows)
	case FormatJSONL:
		err = WriteJSONL(f, rows)
	default:
		err = eris.Errorf("export: unknown format %q", format)
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = eris.Wrapf(cerr, "export: close %s", path)
	}
	return err
}

// ReadFile loads rows written by WriteFile and returns them with the field
// order recorded in the file.
func ReadFile(path string) ([]Row, []string, error) {
	switch FormatFromPath(path) {
	case FormatXLSX:
		return ReadXLSX(path)
	case FormatParquet:
		return ReadParquet(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "export: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	if FormatFromPath(path) == FormatJSONL {
		return ReadJSONL(f)
	}
	return ReadCSV(f)
}

// WriteCSV writes a header and one record per row.
func WriteCSV(w io.Writer, fields []string, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(fields)); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, r := range rows {
		if err := cw.Write(r.Record(fields)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", r.ItemID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// ReadCSV parses a file produced by WriteCSV.
func ReadCSV(r io.Reader) ([]Row, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrap(err, "export: read csv")
	}
	return fromRecords(records)
}

// WriteJSONL writes one JSON object per line.
func WriteJSONL(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return eris.Wrapf(err, "export: encode row %s", r.ItemID)
		}
	}
	return nil
}

// ReadJSONL parses a file produced by WriteJSONL. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]Row, []string, error) {
	var (
		rows   []Row
		fields []string
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return nil, nil, eris.Wrapf(err, "export: decode line %d", line)
		}
		if fields == nil && len(row.Fields) > 0 {
			fields = row.Fields
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "export: scan jsonl")
	}
	return rows, fields, nil
}

// WriteXLSX saves rows to a single-sheet workbook at path.
func WriteXLSX(path string, fields []string, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}
	addRow(sheet, Header(fields))
	for _, r := range rows {
		addRow(sheet, r.Record(fields))
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

// ReadXLSX parses a workbook produced by WriteXLSX.
func ReadXLSX(path string) ([]Row, []string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, ok := f.Sheet[sheetName]
	if !ok {
		if len(f.Sheets) == 0 {
			return nil, nil, eris.New("xlsx: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return fromRecords(records)
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func fromRecords(records [][]string) ([]Row, []string, error) {
	if len(records) == 0 {
		return nil, nil, nil
	}
	header := records[0]
	fields := fieldsFromHeader(header)
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row, err := parseRecord(header, rec, fields)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return rows, fields, nil
}
