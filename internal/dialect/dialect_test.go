package dialect

import (
	"bytes"
	"strings"
	"testing"
)

// TestDetectDelimiter verifies that the scorer picks the delimiter producing
// the most consistent field counts across the sampled lines.
func TestDetectDelimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample string
		want   rune
	}{
		{
			name:   "comma",
			sample: "name,age,city\nalice,30,berlin\nbob,25,paris\n",
			want:   ',',
		},
		{
			name:   "semicolon",
			sample: "name;age;city\nalice;30;berlin\nbob;25;paris\n",
			want:   ';',
		},
		{
			name:   "tab",
			sample: "name\tage\tcity\nalice\t30\tberlin\nbob\t25\tparis\n",
			want:   '\t',
		},
		{
			name:   "pipe",
			sample: "name|age|city\nalice|30|berlin\nbob|25|paris\n",
			want:   '|',
		},
		{
			name:   "comma wins over stray semicolons",
			sample: "name,note,city\nalice,a;b,berlin\nbob,x,paris\ncarol,y;z,rome\n",
			want:   ',',
		},
		{
			name:   "quoted delimiters do not count",
			sample: "name,desc\nalice,\"a,b,c\"\nbob,\"d,e\"\n",
			want:   ',',
		},
		{
			name:   "no delimiter falls back to comma",
			sample: "justoneword\nanotherword\n",
			want:   ',',
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Detect([]byte(tt.sample), Override{})
			if got.Delimiter != tt.want {
				t.Fatalf("Detect(%q).Delimiter = %q, want %q", tt.name, got.Delimiter, tt.want)
			}
		})
	}
}

// TestDetectEncoding covers the BOM checks, the UTF-8 validity scan, and the
// single-byte fallback.
func TestDetectEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample []byte
		want   Encoding
	}{
		{"plain ascii", []byte("a,b\n1,2\n"), EncodingUTF8},
		{"utf8 bom", []byte("\xEF\xBB\xBFa,b\n"), EncodingUTF8},
		{"utf16le bom", []byte{0xFF, 0xFE, 'a', 0, ',', 0, 'b', 0}, EncodingUTF16LE},
		{"utf16be bom", []byte{0xFE, 0xFF, 0, 'a', 0, ',', 0, 'b'}, EncodingUTF16BE},
		{"latin1 bytes", []byte("caf\xE9,b\n1,2\n"), EncodingWindows1252},
		{"valid multibyte utf8", []byte("caf\xC3\xA9,b\n1,2\n"), EncodingUTF8},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := detectEncoding(tt.sample); got != tt.want {
				t.Fatalf("detectEncoding() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestDetectEncodingTruncatedRune covers samples whose fixed-size cut lands
// inside a multibyte rune: the partial tail must not push detection to the
// single-byte fallback.
func TestDetectEncodingTruncatedRune(t *testing.T) {
	t.Parallel()

	full := []byte("city\nsão paulo\n")
	// Cut after the lead byte of the two-byte ã.
	cut := full[:bytes.IndexByte(full, 0xC3)+1]
	if got := detectEncoding(cut); got != EncodingUTF8 {
		t.Fatalf("detectEncoding(mid-rune cut) = %q, want %q", got, EncodingUTF8)
	}
	if d := Detect(cut, Override{}); d.Encoding != EncodingUTF8 {
		t.Fatalf("Detect(mid-rune cut).Encoding = %q, want %q", d.Encoding, EncodingUTF8)
	}

	// Three-byte rune cut after two bytes.
	cut = append([]byte("name\n"), 0xE5, 0x90)
	if got := detectEncoding(cut); got != EncodingUTF8 {
		t.Fatalf("detectEncoding(3-byte cut) = %q, want %q", got, EncodingUTF8)
	}

	// An invalid byte before the tail still means the fallback.
	if got := detectEncoding([]byte("caf\xE9,b\n1,\xC3")); got != EncodingWindows1252 {
		t.Fatalf("detectEncoding(invalid mid-sample) = %q, want %q", got, EncodingWindows1252)
	}
}

// TestTrimPartialRune pins the tail-trimming rules.
func TestTrimPartialRune(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"complete ascii", []byte("abc"), []byte("abc")},
		{"complete multibyte", []byte("s\xC3\xA3o"), []byte("s\xC3\xA3o")},
		{"two-byte lead alone", []byte("s\xC3"), []byte("s")},
		{"three-byte cut after two", []byte("a\xE5\x90"), []byte("a")},
		{"four-byte cut after three", []byte("a\xF0\x9F\x98"), []byte("a")},
		{"lone continuation byte", []byte("a\x80"), []byte("a\x80")},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TrimPartialRune(tt.in); !bytes.Equal(got, tt.want) {
				t.Fatalf("TrimPartialRune(%x) = %x, want %x", tt.in, got, tt.want)
			}
		})
	}
}

// TestDecodeRoundTrip checks that each non-UTF-8 encoding decodes into the
// expected UTF-8 text and encodes back.
func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	latin1 := []byte("caf\xE9")
	got, err := EncodingWindows1252.Decode(latin1)
	if err != nil {
		t.Fatalf("Decode(windows-1252) error: %v", err)
	}
	if string(got) != "café" {
		t.Fatalf("Decode(windows-1252) = %q, want %q", got, "café")
	}

	back, err := EncodingWindows1252.Encode(got)
	if err != nil {
		t.Fatalf("Encode(windows-1252) error: %v", err)
	}
	if string(back) != string(latin1) {
		t.Fatalf("Encode(windows-1252) = %x, want %x", back, latin1)
	}

	utf16 := []byte{0xFF, 0xFE, 'h', 0, 'i', 0}
	got, err = EncodingUTF16LE.Decode(utf16)
	if err != nil {
		t.Fatalf("Decode(utf-16le) error: %v", err)
	}
	if string(got) != "hi" {
		t.Fatalf("Decode(utf-16le) = %q, want %q", got, "hi")
	}
}

// TestDetectHeader exercises both header signals: non-numeric first row over
// numeric columns, and first-row uniqueness against duplicated data rows.
func TestDetectHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample string
		want   bool
	}{
		{
			name:   "text header over numeric data",
			sample: "id,amount\n1,10.5\n2,20.0\n3,30.5\n",
			want:   true,
		},
		{
			name:   "numeric first row is data",
			sample: "1,10.5\n2,20.0\n3,30.5\n",
			want:   false,
		},
		{
			name:   "unique header over duplicated text rows",
			sample: "city,country\nberlin,berlin\nparis,france\n",
			want:   true,
		},
		{
			name:   "all text with no signal defaults to no header",
			sample: "alice,berlin\nbob,paris\ncarol,rome\n",
			want:   false,
		},
		{
			name:   "single line defaults to header",
			sample: "name,age\n",
			want:   true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Detect([]byte(tt.sample), Override{})
			if got.HasHeader != tt.want {
				t.Fatalf("Detect().HasHeader = %v, want %v", got.HasHeader, tt.want)
			}
		})
	}
}

// TestDetectEmptySample verifies the documented defaults for an empty sample.
func TestDetectEmptySample(t *testing.T) {
	t.Parallel()

	got := Detect(nil, Override{})
	want := Dialect{Delimiter: ',', Encoding: EncodingUTF8, HasHeader: true, Confidence: 0}
	if got != want {
		t.Fatalf("Detect(nil) = %+v, want %+v", got, want)
	}
}

// TestDetectOverride checks that pinned properties bypass detection while
// unpinned ones are still sniffed.
func TestDetectOverride(t *testing.T) {
	t.Parallel()

	noHeader := false
	sample := "name;age\nalice;30\nbob;25\n"
	got := Detect([]byte(sample), Override{Delimiter: '|', HasHeader: &noHeader})
	if got.Delimiter != '|' {
		t.Fatalf("pinned delimiter ignored: got %q", got.Delimiter)
	}
	if got.HasHeader {
		t.Fatalf("pinned HasHeader ignored")
	}
	if got.Encoding != EncodingUTF8 {
		t.Fatalf("encoding not detected: got %q", got.Encoding)
	}
}

// TestDetectConfidence sanity-checks the confidence range: a clean consistent
// sample scores high, a ragged one scores lower.
func TestDetectConfidence(t *testing.T) {
	t.Parallel()

	clean := Detect([]byte("a,b,c\n1,2,3\n4,5,6\n"), Override{})
	if clean.Confidence <= 0.5 || clean.Confidence > 1 {
		t.Fatalf("clean sample confidence = %v, want in (0.5, 1]", clean.Confidence)
	}

	ragged := Detect([]byte("a,b,c\n1,2\n4,5,6,7,8\n1\n"), Override{})
	if ragged.Confidence >= clean.Confidence {
		t.Fatalf("ragged confidence %v >= clean %v", ragged.Confidence, clean.Confidence)
	}

	if got := Detect([]byte("word\nword\n"), Override{}); got.Confidence != 0 {
		t.Fatalf("undelimited sample confidence = %v, want 0", got.Confidence)
	}
}

// TestSampleLinesDropsPartialTail ensures an unterminated final line is not
// scored.
func TestSampleLinesDropsPartialTail(t *testing.T) {
	t.Parallel()

	lines := sampleLines([]byte("a,b\nc,d\ne,"))
	if len(lines) != 2 {
		t.Fatalf("sampleLines kept partial tail: %q", lines)
	}
	if !strings.HasPrefix(lines[1], "c") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}
