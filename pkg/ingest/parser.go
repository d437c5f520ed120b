// Package ingest turns uploaded CSV or JSON payloads into image/transcript
// records ready to be stored as work items.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"

	headerImageURL   = "imageurl"
	headerTranscript = "transcript"
)

var (
	// ErrUnsupportedFormat is returned for file names that are neither .csv nor .json.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNoRecords is returned when a payload parses but yields nothing.
	ErrNoRecords = errors.New("no valid data records found")

	lineSplitter = regexp.MustCompile(`\r\n|\r|\n`)
	utf8BOM      = []byte{0xEF, 0xBB, 0xBF}
)

// Record is a single image/transcript pair.
type Record struct {
	ImageURL   string `json:"imageUrl"`
	Transcript string `json:"transcript"`
}

// ValidationError describes a malformed payload. Line is 1-based for CSV
// input and Index is 0-based for JSON input; -1 means not applicable.
type ValidationError struct {
	Line    int
	Index   int
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func lineError(line int, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Line: line, Index: -1, Message: fmt.Sprintf(format, args...)}
}

func indexError(index int, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Line: -1, Index: index, Message: fmt.Sprintf(format, args...)}
}

// Format reports the payload format implied by the file name extension.
func Format(fileName string) (string, error) {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(fileName))) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Parse dispatches on the file extension and returns records in file order.
// The whole payload fails on the first invalid row.
func Parse(fileName string, content []byte) ([]Record, error) {
	format, err := Format(fileName)
	if err != nil {
		return nil, err
	}

	var records []Record
	switch format {
	case FormatCSV:
		records, err = ParseCSV(content)
	case FormatJSON:
		records, err = ParseJSON(content)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

// ParseCSV reads a header line containing imageurl and transcript columns
// (any order, case-insensitive) followed by data lines of equal width.
// Blank lines are skipped; fields may be double-quoted to embed commas.
func ParseCSV(content []byte) ([]Record, error) {
	lines := lineSplitter.Split(string(bytes.TrimPrefix(content, utf8BOM)), -1)

	headerLine := -1
	var headers []string
	records := make([]Record, 0, len(lines))
	imageIdx, transcriptIdx := -1, -1

	for i, line := range lines {
		lineNo := i + 1
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields, err := splitCSVLine(line)
		if err != nil {
			return nil, lineError(lineNo, "Invalid CSV row at line %d", lineNo)
		}

		if headerLine < 0 {
			headerLine = lineNo
			headers = make([]string, len(fields))
			for j, field := range fields {
				headers[j] = strings.ToLower(strings.TrimSpace(field))
				switch headers[j] {
				case headerImageURL:
					if imageIdx < 0 {
						imageIdx = j
					}
				case headerTranscript:
					if transcriptIdx < 0 {
						transcriptIdx = j
					}
				}
			}
			if imageIdx < 0 || transcriptIdx < 0 {
				return nil, lineError(lineNo, "CSV must contain 'imageUrl' and 'transcript' columns")
			}
			continue
		}

		if len(fields) != len(headers) {
			return nil, lineError(lineNo, "Invalid CSV row at line %d", lineNo)
		}
		records = append(records, Record{
			ImageURL:   strings.TrimSpace(fields[imageIdx]),
			Transcript: strings.TrimSpace(fields[transcriptIdx]),
		})
	}

	if headerLine < 0 || len(records) == 0 {
		return nil, lineError(-1, "CSV must have a header and at least one data row")
	}
	return records, nil
}

func splitCSVLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	fields, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []string{}, nil
		}
		return nil, err
	}
	return fields, nil
}

type jsonRecord struct {
	ImageURL   *string `json:"imageUrl"`
	Transcript *string `json:"transcript"`
}

// ParseJSON reads an array of objects carrying non-empty string imageUrl
// and transcript fields.
func ParseJSON(content []byte) ([]Record, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(bytes.TrimPrefix(content, utf8BOM), &elements); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, indexError(-1, "JSON data must be an array")
		}
		return nil, indexError(-1, "Invalid JSON payload: %v", err)
	}

	records := make([]Record, 0, len(elements))
	for i, raw := range elements {
		var rec jsonRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, indexError(i, "Record at index %d must be an object with string imageUrl and transcript", i)
		}
		if rec.ImageURL == nil || strings.TrimSpace(*rec.ImageURL) == "" {
			return nil, indexError(i, "Invalid or missing imageUrl at index %d", i)
		}
		if rec.Transcript == nil || strings.TrimSpace(*rec.Transcript) == "" {
			return nil, indexError(i, "Invalid or missing transcript at index %d", i)
		}
		records = append(records, Record{
			ImageURL:   strings.TrimSpace(*rec.ImageURL),
			Transcript: strings.TrimSpace(*rec.Transcript),
		})
	}
	return records, nil
}
