// Package dialect sniffs the structural properties of a delimited text file
// from a bounded byte sample: delimiter, text encoding, and header presence.
//
// Detection is heuristic and intentionally conservative:
//   - It never fails. An empty or hopelessly ambiguous sample yields the
//     documented defaults (comma, UTF-8, header present) with zero
//     confidence, and callers can always override explicitly.
//   - Scoring works on raw lines, not fully parsed CSV. A sample is a prefix
//     cut at the last newline, so quoting anomalies in the tail are tolerable
//     for the purpose of picking a delimiter.
package dialect

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding identifies the text encoding of a file. The set is closed: it
// covers what the byte-order-mark check and the UTF-8 scan can actually
// distinguish, plus the single-byte fallback.
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingUTF16LE     Encoding = "utf-16le"
	EncodingUTF16BE     Encoding = "utf-16be"
	EncodingWindows1252 Encoding = "windows-1252"
)

// impl returns the x/text implementation for non-UTF-8 encodings.
// UTF-8 needs no transform and returns nil.
func (e Encoding) impl() encoding.Encoding {
	switch e {
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case EncodingWindows1252:
		return charmap.Windows1252
	default:
		return nil
	}
}

// Decode converts raw file bytes into UTF-8. For EncodingUTF8 the input is
// returned unchanged apart from BOM stripping; the caller validates it.
func (e Encoding) Decode(b []byte) ([]byte, error) {
	if enc := e.impl(); enc != nil {
		return enc.NewDecoder().Bytes(b)
	}
	return bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF}), nil
}

// Encode converts UTF-8 bytes into this encoding. Used by the exporter.
func (e Encoding) Encode(b []byte) ([]byte, error) {
	if enc := e.impl(); enc != nil {
		return enc.NewEncoder().Bytes(b)
	}
	return b, nil
}

// Dialect describes how to parse a delimited text file.
type Dialect struct {
	Delimiter rune     `json:"delimiter"`
	Encoding  Encoding `json:"encoding"`
	HasHeader bool     `json:"has_header"`

	// Confidence is 0..1. Defaults produced for empty/ambiguous samples
	// carry 0; a clean unanimous sample approaches 1.
	Confidence float64 `json:"confidence"`
}

// Override pins individual dialect properties, bypassing detection for the
// pinned ones. Zero values mean "detect".
type Override struct {
	Delimiter rune
	Encoding  Encoding
	HasHeader *bool
}

// candidateDelimiters is the fixed candidate set, in tie-break order.
var candidateDelimiters = []rune{',', '\t', ';', '|'}

const (
	// maxSampleLines bounds the per-candidate scoring work.
	maxSampleLines = 50

	// DefaultSampleBytes is the suggested sample size for callers that read
	// the file prefix themselves.
	DefaultSampleBytes = 16 * 1024
)

// Detect sniffs delimiter, encoding, and header presence from sample.
//
// The sample should be a prefix of the file. Detection never fails: when the
// sample is empty or every candidate delimiter ties at zero, the returned
// Dialect holds the documented defaults with Confidence 0.
func Detect(sample []byte, ov Override) Dialect {
	d := Dialect{Delimiter: ',', Encoding: EncodingUTF8, HasHeader: true}

	d.Encoding = detectEncoding(sample)
	if ov.Encoding != "" {
		d.Encoding = ov.Encoding
	}

	decoded, err := d.Encoding.Decode(sample)
	if err != nil {
		// Undecodable sample: keep defaults, apply pins, report no confidence.
		applyOverride(&d, ov)
		return d
	}

	lines := sampleLines(decoded)
	if len(lines) == 0 {
		applyOverride(&d, ov)
		return d
	}

	delim, conf := scoreDelimiters(lines)
	d.Delimiter = delim
	d.Confidence = conf
	if ov.Delimiter != 0 {
		d.Delimiter = ov.Delimiter
	}

	d.HasHeader = detectHeader(lines, d.Delimiter)
	if ov.HasHeader != nil {
		d.HasHeader = *ov.HasHeader
	}
	return d
}

func applyOverride(d *Dialect, ov Override) {
	if ov.Delimiter != 0 {
		d.Delimiter = ov.Delimiter
	}
	if ov.Encoding != "" {
		d.Encoding = ov.Encoding
	}
	if ov.HasHeader != nil {
		d.HasHeader = *ov.HasHeader
	}
}

// detectEncoding applies the BOM check first, then a UTF-8 validity scan.
// The sample is a fixed-size prefix, so a multibyte rune cut off at its end
// is trimmed before the scan rather than counted as invalid. Invalid UTF-8
// without a BOM falls back to Windows-1252, which can decode any byte
// sequence; truly ambiguous input therefore still round-trips.
func detectEncoding(sample []byte) Encoding {
	switch {
	case bytes.HasPrefix(sample, []byte{0xEF, 0xBB, 0xBF}):
		return EncodingUTF8
	case bytes.HasPrefix(sample, []byte{0xFF, 0xFE}):
		return EncodingUTF16LE
	case bytes.HasPrefix(sample, []byte{0xFE, 0xFF}):
		return EncodingUTF16BE
	}
	if utf8.Valid(TrimPartialRune(sample)) {
		return EncodingUTF8
	}
	return EncodingWindows1252
}

// TrimPartialRune drops a trailing multibyte UTF-8 sequence that a
// fixed-size sample cut before its final byte. Complete input comes back
// unchanged, as does input whose tail is invalid rather than truncated.
// Callers that validate a sampled file prefix apply this first so that the
// cut point does not masquerade as an encoding problem.
func TrimPartialRune(b []byte) []byte {
	start := len(b) - 1
	for ; start >= 0 && len(b)-start < utf8.UTFMax; start-- {
		if utf8.RuneStart(b[start]) {
			break
		}
	}
	if start < 0 || !utf8.RuneStart(b[start]) {
		return b
	}
	if need := runeLen(b[start]); need > len(b)-start {
		return b[:start]
	}
	return b
}

// runeLen is the encoded length a lead byte announces; 1 for ASCII and for
// bytes that cannot start a rune.
func runeLen(lead byte) int {
	switch {
	case lead < 0x80:
		return 1
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}

// sampleLines splits the decoded sample into scoring lines. The final line is
// dropped when the sample does not end in a newline, because a cut-off record
// would skew field counts.
func sampleLines(b []byte) []string {
	s := string(b)
	complete := strings.HasSuffix(s, "\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if !complete && len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	if len(out) > maxSampleLines {
		out = out[:maxSampleLines]
	}
	return out
}

// scoreDelimiters picks the candidate with the most consistent field counts.
//
// Each candidate is scored by (a) the variance of per-line field counts,
// lower is better, and (b) whether the first line's field count matches the
// mode of the remaining lines. A candidate producing only single-field lines
// scores zero. Ties resolve in candidate order, which makes a full tie at
// zero fall through to the comma default.
func scoreDelimiters(lines []string) (rune, float64) {
	best := ','
	bestScore := 0.0

	for _, cand := range candidateDelimiters {
		counts := make([]int, len(lines))
		multi := false
		for i, l := range lines {
			counts[i] = splitCount(l, cand)
			if counts[i] > 1 {
				multi = true
			}
		}
		if !multi {
			continue
		}

		mean := 0.0
		for _, c := range counts {
			mean += float64(c)
		}
		mean /= float64(len(counts))

		variance := 0.0
		for _, c := range counts {
			d := float64(c) - mean
			variance += d * d
		}
		variance /= float64(len(counts))

		score := 1.0 / (1.0 + variance)
		if len(counts) > 1 && counts[0] == modeOf(counts[1:]) {
			score += 0.5
		}
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}

	if bestScore == 0 {
		return ',', 0
	}
	// Normalize to 0..1: a perfect score is 1.5 (zero variance + header match).
	return best, bestScore / 1.5
}

// splitCount counts fields on a raw line, honoring double-quoted sections so
// that delimiters inside quotes do not inflate the count.
func splitCount(line string, delim rune) int {
	n := 1
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			n++
		}
	}
	return n
}

func modeOf(counts []int) int {
	if len(counts) == 0 {
		return 0
	}
	freq := make(map[int]int, len(counts))
	best, bestN := counts[0], 0
	for _, c := range counts {
		freq[c]++
		if freq[c] > bestN || (freq[c] == bestN && c < best) {
			best, bestN = c, freq[c]
		}
	}
	return best
}

// detectHeader decides whether the first sampled line is a header row.
//
// Two signals, either is sufficient:
//  1. Every first-row field is non-numeric while a majority of the
//     corresponding column's subsequent values are numeric.
//  2. The first row has no duplicate field values while subsequent rows do.
//
// A single-line sample defaults to header-present, matching the documented
// default for undetectable input.
func detectHeader(lines []string, delim rune) bool {
	if len(lines) < 2 {
		return true
	}

	first := splitRaw(lines[0], delim)
	rest := make([][]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		rest = append(rest, splitRaw(l, delim))
	}

	if headerByNumericShape(first, rest) {
		return true
	}
	return headerByUniqueness(first, rest)
}

func headerByNumericShape(first []string, rest [][]string) bool {
	anyNumericColumn := false
	for _, f := range first {
		if isNumericToken(f) {
			return false
		}
	}
	for col := range first {
		numeric, seen := 0, 0
		for _, r := range rest {
			if col >= len(r) || strings.TrimSpace(r[col]) == "" {
				continue
			}
			seen++
			if isNumericToken(r[col]) {
				numeric++
			}
		}
		if seen > 0 && numeric*2 > seen {
			anyNumericColumn = true
		}
	}
	return anyNumericColumn
}

func headerByUniqueness(first []string, rest [][]string) bool {
	if hasDuplicates(first) {
		return false
	}
	for _, r := range rest {
		if hasDuplicates(r) {
			return true
		}
	}
	return false
}

func hasDuplicates(fields []string) bool {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			return true
		}
		seen[f] = struct{}{}
	}
	return false
}

func isNumericToken(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	dot := false
	for i, r := range s {
		switch {
		case r == '-' || r == '+':
			if i != 0 {
				return false
			}
		case r == '.':
			if dot {
				return false
			}
			dot = true
		case r < '0' || r > '9':
			return false
		}
	}
	return true
}

// splitRaw splits a line on delim honoring double quotes, without unescaping.
// Good enough for header heuristics; real parsing uses encoding/csv.
func splitRaw(line string, delim rune) []string {
	var out []string
	var b strings.Builder
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			out = append(out, strings.Trim(b.String(), `"`))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	out = append(out, strings.Trim(b.String(), `"`))
	return out
}
