package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/lang"
)

// Delimiter separates columns in every exported table.
const Delimiter = '\t'

// MetadataColumns is the fixed header of metadata.csv.
var MetadataColumns = []string{
	"path", "header", "header_trans", "created", "author", "birthday",
	"translator", "date_trans", "sphere", "lang", "lang_trans",
}

// MetadataRow describes one exported post. Columns without a field are
// written empty.
type MetadataRow struct {
	Path        string
	Header      string
	HeaderTrans string
	Created     string
	Lang        string
	LangTrans   string
}

func (r MetadataRow) record() []string {
	return []string{
		r.Path, r.Header, r.HeaderTrans, r.Created,
		"", "", "", "", "",
		r.Lang, r.LangTrans,
	}
}

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter
	return cw
}

// WritePairs writes one (primary, secondary) row per pair.
func WritePairs(w io.Writer, pairs []lang.Pair) error {
	cw := newWriter(w)
	for _, p := range pairs {
		if err := cw.Write([]string{p.Primary.Text, p.Secondary.Text}); err != nil {
			return fmt.Errorf("write pair: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMetadata writes the header line followed by rows.
func WriteMetadata(w io.Writer, rows []MetadataRow) error {
	cw := newWriter(w)
	if err := cw.Write(MetadataColumns); err != nil {
		return fmt.Errorf("write metadata header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return fmt.Errorf("write metadata row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadMetadata reads a table written by WriteMetadata.
func ReadMetadata(r io.Reader) ([]MetadataRow, error) {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = len(MetadataColumns)
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(MetadataColumns))
	for i, name := range records[0] {
		col[name] = i
	}
	for _, name := range MetadataColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("read metadata: missing column %q", name)
		}
	}

	rows := make([]MetadataRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, MetadataRow{
			Path:        rec[col["path"]],
			Header:      rec[col["header"]],
			HeaderTrans: rec[col["header_trans"]],
			Created:     rec[col["created"]],
			Lang:        rec[col["lang"]],
			LangTrans:   rec[col["lang_trans"]],
		})
	}
	return rows, nil
}
