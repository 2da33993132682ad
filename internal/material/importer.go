package material

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/quizbox/pkg/models"
)

// OptionSeparator splits the options cell into individual options
const OptionSeparator = "|"

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath       string // Path to the Excel or CSV file
	IDColumn       string // Column with the question id
	TypeColumn     string // Column with the question type (mcq or short)
	QuestionColumn string // Column with the question text
	OptionsColumn  string // Column with the options, separated by OptionSeparator
	AnswerColumn   string // Column with the answer: option index, option letter or text
	HintColumn     string
	ExtraColumn    string
	PageColumn     string
	SheetName      string // Name of the sheet to import
	StartRow       int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		IDColumn:       "A",
		TypeColumn:     "B",
		QuestionColumn: "C",
		OptionsColumn:  "D",
		AnswerColumn:   "E",
		HintColumn:     "F",
		ExtraColumn:    "G",
		PageColumn:     "H",
		SheetName:      "Sheet1",
		StartRow:       2, // skip header
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Errors         []string
}

// ImportFile reads questions from an Excel or CSV file.
// Rows that fail validation are skipped and reported in the result.
func ImportFile(config ImportConfig) ([]models.Question, *ImportResult, error) {
	rows, err := readRows(config)
	if err != nil {
		return nil, nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	questions := make([]models.Question, 0, len(rows))
	seen := make(map[string]bool)

	for i, row := range rows {
		rowNum := i + 1
		if rowNum < config.StartRow || isBlank(row) {
			continue
		}
		result.TotalProcessed++

		q, err := parseRow(row, config)
		if err == nil && seen[q.ID] {
			err = fmt.Errorf("duplicate id %q", q.ID)
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}

		seen[q.ID] = true
		questions = append(questions, q)
		result.Imported++
	}

	return questions, result, nil
}

func readRows(config ImportConfig) ([][]string, error) {
	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		return readCSV(config.FilePath)
	}
	return readExcel(config)
}

func readExcel(config ImportConfig) ([][]string, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(config.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(row []string, config ImportConfig) (models.Question, error) {
	cell := func(column string) string {
		if column == "" {
			return ""
		}
		if idx := columnToIndex(column); idx >= 0 && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	q := models.Question{
		ID:       cell(config.IDColumn),
		Question: cell(config.QuestionColumn),
		Hint:     cell(config.HintColumn),
		Extra:    cell(config.ExtraColumn),
	}
	if q.ID == "" {
		return q, fmt.Errorf("id cannot be empty")
	}
	if q.Question == "" {
		return q, fmt.Errorf("question cannot be empty")
	}

	if opts := cell(config.OptionsColumn); opts != "" {
		for _, o := range strings.Split(opts, OptionSeparator) {
			if o = strings.TrimSpace(o); o != "" {
				q.Options = append(q.Options, o)
			}
		}
	}

	switch t := strings.ToLower(cell(config.TypeColumn)); t {
	case string(models.MultipleChoice), string(models.ShortAnswer):
		q.Type = models.QuestionType(t)
	case "":
		q.Type = models.ShortAnswer
		if len(q.Options) > 0 {
			q.Type = models.MultipleChoice
		}
	default:
		return q, fmt.Errorf("unknown type %q", t)
	}

	answer := cell(config.AnswerColumn)
	if answer == "" {
		return q, fmt.Errorf("answer cannot be empty")
	}
	if q.Type == models.MultipleChoice {
		if len(q.Options) < 2 {
			return q, fmt.Errorf("multiple choice needs at least two options")
		}
		idx, err := parseOptionIndex(answer, len(q.Options))
		if err != nil {
			return q, err
		}
		q.Answer = models.IndexAnswer(idx)
	} else {
		q.Answer = models.TextAnswer(answer)
	}

	if page := cell(config.PageColumn); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil {
			return q, fmt.Errorf("invalid page %q", page)
		}
		q.Page = n
	}

	return q, nil
}

// parseOptionIndex accepts a zero-based index ("2") or an option letter ("C")
func parseOptionIndex(s string, n int) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil {
		if len(s) != 1 {
			return 0, fmt.Errorf("invalid answer %q", s)
		}
		idx = int(strings.ToUpper(s)[0]) - 'A'
	}
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("answer %q out of range", s)
	}
	return idx, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// columnToIndex converts an Excel column letter to a zero-based index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
