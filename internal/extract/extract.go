// Package extract normalizes heterogeneous claim inputs into a single
// plain-text clinical narrative. It never touches the network or the LLM
// gateway.
package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrNoInput indicates the caller supplied nothing usable: no rows, no
// segment text, no raw text.
var ErrNoInput = errors.New("extract: no rows, segment text, or raw text supplied")

// noteColumns are the recognized header aliases for a free-text clinical
// note column in delimited claim exports.
var noteColumns = []string{"soap", "clinical_notes", "notes"}

// noteSegments are the HL7-style segment markers whose trailing field may
// carry narrative text (observation results and note segments).
var noteSegments = map[string]bool{"OBX": true, "NTE": true}

// Input carries exactly one flavor of source material. When several are set,
// rows win over segment text, and segment text wins over raw text.
type Input struct {
	Rows        []map[string]string
	SegmentText string
	RawText     string
}

// Narrative is the extractor's immutable output: the concatenated clinical
// text plus the source rows retained for audit.
type Narrative struct {
	Text string
	Rows []map[string]string
}

// Extract builds the narrative for downstream stages.
func Extract(in Input) (*Narrative, error) {
	switch {
	case len(in.Rows) > 0:
		return fromRows(in.Rows), nil
	case in.SegmentText != "":
		return fromSegments(in.SegmentText), nil
	case in.RawText != "":
		return &Narrative{Text: in.RawText}, nil
	default:
		return nil, ErrNoInput
	}
}

// fromRows concatenates every non-empty note value in row order, separated
// by a blank line. Column lookup is case-insensitive.
func fromRows(rows []map[string]string) *Narrative {
	var notes []string
	for _, row := range rows {
		if note := noteValue(row); note != "" {
			notes = append(notes, note)
		}
	}
	return &Narrative{
		Text: strings.Join(notes, "\n\n"),
		Rows: rows,
	}
}

func noteValue(row map[string]string) string {
	for _, col := range noteColumns {
		for key, val := range row {
			if strings.EqualFold(strings.TrimSpace(key), col) && strings.TrimSpace(val) != "" {
				return strings.TrimSpace(val)
			}
		}
	}
	return ""
}

// fromSegments scans segment lines in document order. A line contributes its
// last pipe-delimited field when its leading token is a note-bearing segment
// and the line has enough fields to carry a value.
func fromSegments(text string) *Narrative {
	var notes []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 6 || !noteSegments[fields[0]] {
			continue
		}
		if last := strings.TrimSpace(fields[len(fields)-1]); last != "" {
			notes = append(notes, last)
		}
	}
	return &Narrative{Text: strings.Join(notes, "\n")}
}

// ParseDelimited tokenizes CSV content into header-keyed rows. The first
// record is the header. Content that is not valid UTF-8 or cannot be read as
// CSV at all wraps ErrNoInput so the orchestrator surfaces it as an input
// error rather than a pipeline failure.
func ParseDelimited(r io.Reader) ([]map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read delimited input: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: input is not decodable as text", ErrNoInput)
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1 // ragged exports are common

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoInput, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
