// Package importer turns uploaded spreadsheets into case rows keyed by field name.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Canonical row keys produced by Parse.
const (
	FieldRadicado         = "radicado"
	FieldFilingDate       = "filing_date"
	FieldResponseDeadline = "response_deadline"
	FieldResponseDate     = "response_date"
	FieldChannel          = "channel"
	FieldCategory         = "category"
	FieldSubject          = "subject"
	FieldRequesterName    = "requester_name"
	FieldRequesterEmail   = "requester_email"
	FieldRequestedEntity  = "requested_entity"
	FieldAssignedUnit     = "assigned_unit"
	FieldSector           = "sector"
	FieldTraceability     = "traceability"
	FieldComments         = "comments"

	// FieldRow holds the record's position in the source below the header, counting blank
	// lines, so row 1 is the first line after the header.
	FieldRow = "_row"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither .xlsx nor .csv.
	ErrUnsupportedFormat = errors.New("unsupported file format, expected .xlsx or .csv")
	// ErrNoHeader is returned when the file has no non-empty row.
	ErrNoHeader = errors.New("file has no header row")
)

var aliases = map[string]string{
	"radicado":                  FieldRadicado,
	"numero radicado":           FieldRadicado,
	"número radicado":           FieldRadicado,
	"no. radicado":              FieldRadicado,
	"fecha radicacion":          FieldFilingDate,
	"fecha radicación":          FieldFilingDate,
	"fecha de radicación":       FieldFilingDate,
	"fecha de radicacion":       FieldFilingDate,
	"fecha limite respuesta":    FieldResponseDeadline,
	"fecha límite respuesta":    FieldResponseDeadline,
	"fecha limite de respuesta": FieldResponseDeadline,
	"fecha límite de respuesta": FieldResponseDeadline,
	"vencimiento":               FieldResponseDeadline,
	"fecha respuesta":           FieldResponseDate,
	"fecha de respuesta":        FieldResponseDate,
	"canal":                     FieldChannel,
	"medio":                     FieldChannel,
	"tipo":                      FieldCategory,
	"tipo pqrs":                 FieldCategory,
	"categoria":                 FieldCategory,
	"categoría":                 FieldCategory,
	"asunto":                    FieldSubject,
	"peticionario":              FieldRequesterName,
	"solicitante":               FieldRequesterName,
	"correo":                    FieldRequesterEmail,
	"correo electrónico":        FieldRequesterEmail,
	"correo electronico":        FieldRequesterEmail,
	"email":                     FieldRequesterEmail,
	"entidad":                   FieldRequestedEntity,
	"entidad requerida":         FieldRequestedEntity,
	"dependencia":               FieldAssignedUnit,
	"área asignada":             FieldAssignedUnit,
	"area asignada":             FieldAssignedUnit,
	"sector":                    FieldSector,
	"trazabilidad":              FieldTraceability,
	"observaciones":             FieldComments,
	"comentarios":               FieldComments,
}

// Parse reads the first sheet of an .xlsx file or a .csv file. The first non-empty row is
// the header; each following non-empty row becomes one record. Known headers are mapped to
// the Field* keys, unknown ones are kept under their normalized name.
func Parse(fileName string, r io.Reader) ([]map[string]string, error) {
	var (
		rows []sourceRow
		err  error
	)
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(r)
	case ".csv":
		rows, err = readCSV(r)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	return toRecords(rows)
}

// NormalizeHeader trims, lowercases and collapses inner whitespace. Accents are kept.
func NormalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}

// FieldFor returns the canonical key for a spreadsheet header.
func FieldFor(header string) string {
	n := NormalizeHeader(header)
	if field, ok := aliases[n]; ok {
		return field
	}
	return strings.ReplaceAll(n, " ", "_")
}

// sourceRow is one row of cells with its 1-based line or sheet row number.
type sourceRow struct {
	line  int
	cells []string
}

func readXLSX(r io.Reader) ([]sourceRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	// raw values keep date cells as serial numbers instead of locale formatted text
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	out := make([]sourceRow, len(rows))
	for i, cells := range rows {
		out[i] = sourceRow{line: i + 1, cells: cells}
	}
	return out, nil
}

func readCSV(r io.Reader) ([]sourceRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	// the reader drops empty lines, so positions come from FieldPos
	var rows []sourceRow
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, sourceRow{line: line, cells: cells})
	}
}

// detectDelimiter picks ';' when the header line uses it and has no commas, as spreadsheet
// exports in es-CO locales do.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func toRecords(rows []sourceRow) ([]map[string]string, error) {
	start := -1
	for i, row := range rows {
		if !blank(row.cells) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrNoHeader
	}

	headerLine := rows[start].line
	header := make([]string, len(rows[start].cells))
	for i, h := range rows[start].cells {
		header[i] = FieldFor(h)
	}

	records := make([]map[string]string, 0, len(rows)-start-1)
	for _, row := range rows[start+1:] {
		if blank(row.cells) {
			continue
		}
		record := make(map[string]string, len(header)+1)
		for i, key := range header {
			if key == "" {
				continue
			}
			value := ""
			if i < len(row.cells) {
				value = strings.TrimSpace(row.cells[i])
			}
			record[key] = value
		}
		record[FieldRow] = strconv.Itoa(row.line - headerLine)
		records = append(records, record)
	}
	return records, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
