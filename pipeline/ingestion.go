package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Record is one raw row of the training CSV.
type Record struct {
	Line      int    `json:"line"`
	Local     string `json:"local"`
	Timestamp string `json:"timestamp"`
	Tipo      string `json:"tipo"`
}

// RequiredColumns are located in the header by name; other columns are ignored.
var RequiredColumns = []string{"local", "timestamp", "tipo"}

var (
	ErrMissingColumn       = errors.New("missing column")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	ErrNoRecords           = errors.New("no records")
)

// IngestionStats describes one ingested source.
type IngestionStats struct {
	Source   string `json:"source"`
	Encoding string `json:"encoding"`
	Rows     int    `json:"rows"`
	Columns  int    `json:"columns"`
}

// charsetDecoder maps a configured charset name to its decoder.
func charsetDecoder(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
	}
}

// Ingest reads training records from r. The input is decoded from the given
// charset into UTF-8; a leading UTF-8 BOM is dropped in every case.
func Ingest(r io.Reader, charset string) ([]Record, *IngestionStats, error) {
	enc, err := charsetDecoder(charset)
	if err != nil {
		return nil, nil, err
	}
	decoded := transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("read header: %w", ErrNoRecords)
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, nil, err
	}
	stats := &IngestionStats{Encoding: charsetName(charset), Columns: len(header)}

	var records []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, Record{
			Line:      line,
			Local:     field(row, index["local"]),
			Timestamp: field(row, index["timestamp"]),
			Tipo:      field(row, index["tipo"]),
		})
	}
	if len(records) == 0 {
		return nil, nil, ErrNoRecords
	}
	stats.Rows = len(records)
	return records, stats, nil
}

// IngestFile opens path and reads it with Ingest.
func IngestFile(path, charset string) ([]Record, *IngestionStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open training data: %w", err)
	}
	defer f.Close()

	records, stats, err := Ingest(f, charset)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	stats.Source = path
	zap.S().Infow("training data ingested", "source", path, "encoding", stats.Encoding, "rows", stats.Rows)
	return records, stats, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(RequiredColumns))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}
	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return index, nil
}

// field returns the value at idx, or "" when a short row lacks it.
func field(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

func charsetName(charset string) string {
	if charset == "" {
		return "utf-8"
	}
	return strings.ToLower(charset)
}
