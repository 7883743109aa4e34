package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/conorfennell/recall/internal/domain"
)

// ParseXLSX reads the first sheet of a workbook. Columns A, B and C hold
// the question, answer and context; the first row is a header.
func ParseXLSX(r io.Reader) ([]domain.Card, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows of sheet %s: %w", sheets[0], err)
	}
	if len(rows) > 0 {
		rows = rows[1:]
	}
	return rowsToCards(rows), nil
}

// ParseCSV reads question,answer,context records. The first record is a
// header.
func ParseCSV(r io.Reader) ([]domain.Card, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	header := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		if header {
			header = false
			continue
		}
		rows = append(rows, row)
	}
	return rowsToCards(rows), nil
}

func rowsToCards(rows [][]string) []domain.Card {
	var cards []domain.Card
	for _, row := range rows {
		cell := func(i int) string {
			if i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		c := domain.Card{Question: cell(0), Answer: cell(1), Context: cell(2)}
		if c.Question == "" {
			continue
		}
		cards = append(cards, c)
	}
	return cards
}
