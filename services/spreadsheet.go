package services

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrEmptyWorkbook is returned when a workbook contains no sheets.
	ErrEmptyWorkbook = errors.New("workbook has no sheets")

	// ErrUnsupportedFormat is returned for uploads that are neither an
	// OOXML workbook nor comma-separated text.
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
)

// zip local file header; every .xlsx/.xlsm workbook starts with it
var zipMagic = []byte("PK\x03\x04")

// csvExtensions are accepted as text when the content is not a workbook.
var csvExtensions = map[string]bool{"": true, ".csv": true, ".txt": true}

// ParseSpreadsheet reads the file at path into rows of cell values. Content
// starting with a zip header is opened as an Excel workbook (first sheet
// only). Otherwise the upload is read as CSV when originalName has a .csv or
// .txt extension or none at all; anything else, such as legacy .xls or .ods,
// yields ErrUnsupportedFormat. Trailing blank cells are dropped from every
// row so row width counts populated columns only.
func ParseSpreadsheet(path, originalName string) ([][]string, error) {
	isZip, err := hasZipHeader(path)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch {
	case isZip:
		rows, err = readWorkbook(path)
	case csvExtensions[strings.ToLower(filepath.Ext(originalName))]:
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, originalName)
	}
	if err != nil {
		return nil, err
	}

	for i, row := range rows {
		rows[i] = trimTrailingBlank(row)
	}
	return rows, nil
}

func hasZipHeader(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	head := make([]byte, len(zipMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	return bytes.Equal(head, zipMagic), nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return rows, nil
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func trimTrailingBlank(row []string) []string {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return row[:n]
}
