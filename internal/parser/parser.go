// Package parser extracts flashcards from markdown, spreadsheet and CSV
// files.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/recall/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	separator      = "---"
)

type field int

const (
	none field = iota
	question
	answer
	context
)

// Supported reports whether ParseFile understands the file's extension.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".xlsx", ".csv":
		return true
	}
	return false
}

// ParseFile reads a file from the given path and extracts all cards. The
// format is chosen from the extension.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".md":
		return Parse(file)
	case ".xlsx":
		return ParseXLSX(file)
	case ".csv":
		return ParseCSV(file)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}

// Parse reads markdown from r and extracts all cards. A card starts at a
// "Q:" line; "A:" and "C:" lines start its answer and context. Lines
// without a prefix continue the current field and "---" ends the card.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)

	var (
		cards   []domain.Card
		current domain.Card
		block   []string
		active  = none
	)

	flush := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimRight(strings.Join(block, "\n"), " \t\n")
		switch active {
		case question:
			current.Question = content
		case answer:
			current.Answer = content
		case context:
			current.Context = content
		}
		block = nil
	}

	finish := func() {
		flush()
		if current.Question != "" {
			cards = append(cards, current)
		}
		current = domain.Card{}
		active = none
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == separator {
			finish()
			continue
		}

		next, rest, ok := prefixed(line)
		if !ok {
			if active != none {
				block = append(block, line)
			}
			continue
		}

		// A new question always starts a new card.
		if next == question && active != none {
			finish()
		}
		flush()
		active = next
		block = append(block, rest)
	}

	finish()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

func prefixed(line string) (field, string, bool) {
	for _, p := range []struct {
		prefix string
		f      field
	}{
		{questionPrefix, question},
		{answerPrefix, answer},
		{contextPrefix, context},
	} {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.f, strings.TrimPrefix(rest, " "), true
		}
	}
	return none, "", false
}
