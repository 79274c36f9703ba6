package document

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/and161185/fba-recon/internal/model"
)

// delimiterCandidates in preference order for ties.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText returns the document as UTF-8. Legacy flat files that are not
// valid UTF-8 are read as Windows-1252.
func DecodeText(b []byte) string {
	b = bytes.TrimPrefix(b, utf8BOM)
	if utf8.Valid(b) {
		return string(b)
	}
	if s, err := charmap.Windows1252.NewDecoder().Bytes(b); err == nil {
		return string(s)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// DetectDelimiter picks the candidate occurring most often in the first
// non-empty line. It falls back to tab when no candidate occurs.
func DetectDelimiter(text string) rune {
	sample := firstLine(text)
	best, bestN := '\t', 0
	for _, c := range delimiterCandidates {
		if n := strings.Count(sample, string(c)); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

func firstLine(text string) string {
	for rest := text; rest != ""; {
		var line string
		line, rest, _ = strings.Cut(rest, "\n")
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// ParseDelimited parses text with a header line into rows keyed by the
// trimmed header names. Values are trimmed; missing trailing values become
// empty strings. It returns the rows and the number of skipped records.
func ParseDelimited(text string) ([]model.RawRow, int) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = DetectDelimiter(text)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	header, err := r.Read()
	if err != nil {
		return nil, 0
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var (
		rows    []model.RawRow
		skipped int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				skipped++
				continue
			}
			break
		}
		row := make(model.RawRow, len(header))
		for i, k := range header {
			if k == "" {
				continue
			}
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			row[k] = v
		}
		rows = append(rows, row)
	}
	return rows, skipped
}
