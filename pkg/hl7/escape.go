package hl7

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Diagnostic describes an escape sequence that could not be resolved, or an
// envelope line that was skipped. Processing continues after one is
// reported.
type Diagnostic struct {
	Sequence string // offending escape run or line, delimiters stripped
	Offset   int    // byte offset in Input where the problem was detected
	Input    string
	Reason   string
}

// DiagnosticSink receives diagnostics. A nil sink discards them.
type DiagnosticSink func(Diagnostic)

func (s DiagnosticSink) report(d Diagnostic) {
	if s != nil {
		s(d)
	}
}

// Escape replaces delimiter characters in text with their HL7 escape
// sequences and hex encodes everything outside printable ASCII. Bytes that
// are not valid UTF-8 are hex encoded one byte at a time. appMap, if given,
// maps single characters to escape codes and is consulted first.
func Escape(d Delimiters, text string, appMap map[string]string) string {
	if text == "" {
		return text
	}
	esc := string(d.Escape)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&b, "%sX%02x%s", esc, text[i], esc)
			i++
			continue
		}
		i += size
		if code, ok := appMap[string(r)]; ok {
			b.WriteString(esc + code + esc)
			continue
		}
		if code := escapeCode(d, r); code != "" {
			b.WriteString(esc + code + esc)
			continue
		}
		if r >= 0x20 && r <= 0x7e {
			b.WriteRune(r)
			continue
		}
		fmt.Fprintf(&b, "%sX%02x%s", esc, r, esc)
	}
	return b.String()
}

func escapeCode(d Delimiters, r rune) string {
	switch r {
	case rune(d.Field):
		return "F"
	case rune(d.Repetition):
		return "R"
	case rune(d.Component):
		return "S"
	case rune(d.Subcomponent):
		return "T"
	case rune(d.Escape):
		return "E"
	case '\r':
		return ".br"
	}
	return ""
}

func unescapeTable(d Delimiters) map[string]string {
	return map[string]string{
		"H":   "_",
		"N":   "_",
		"F":   string(d.Field),
		"R":   string(d.Repetition),
		"S":   string(d.Component),
		"T":   string(d.Subcomponent),
		"E":   string(d.Escape),
		".br": "\r",
		".sp": "\r",
		".ce": "\r",
		".fi": "",
		".nf": "",
		".in": "    ",
		".ti": "    ",
		".sk": " ",
	}
}

// Unescape resolves the escape sequences in text. Highlighting codes
// collapse to "_", formatting codes map to plain-text stand-ins with an
// optional repeat count (".sp3"), and \Xhh..\ decodes hex pairs to code
// points. Unknown, malformed or unsupported sequences (character set
// switches \C..\ and \M..\) are dropped and reported to sink.
func Unescape(d Delimiters, text string, appMap map[string]string, sink DiagnosticSink) string {
	if text == "" || strings.IndexByte(text, d.Escape) < 0 {
		return text
	}
	table := unescapeTable(d)
	esc := d.Escape

	var b, run strings.Builder
	inRun := false
	for offset := 0; offset < len(text); offset++ {
		c := text[offset]
		switch {
		case inRun && c == esc:
			inRun = false
			b.WriteString(resolveEscape(run.String(), table, appMap, func(reason string) {
				sink.report(Diagnostic{Sequence: run.String(), Offset: offset, Input: text, Reason: reason})
			}))
			run.Reset()
		case inRun:
			run.WriteByte(c)
		case c == esc:
			inRun = true
		default:
			b.WriteByte(c)
		}
	}
	if inRun {
		sink.report(Diagnostic{Sequence: run.String(), Offset: len(text), Input: text, Reason: "unterminated escape sequence"})
	}
	return b.String()
}

func resolveEscape(seq string, table, appMap map[string]string, fail func(reason string)) string {
	if seq == "" {
		fail("empty escape sequence")
		return ""
	}
	if v, ok := appMap[seq]; ok {
		return v
	}
	if v, ok := table[seq]; ok {
		return v
	}
	if seq[0] == '.' && len(seq) > 3 {
		v, ok := appMap[seq[:3]]
		if !ok {
			v, ok = table[seq[:3]]
		}
		if ok {
			n, err := strconv.Atoi(seq[3:])
			if err != nil || n < 0 {
				fail("invalid repeat count")
				return ""
			}
			return strings.Repeat(v, n)
		}
	}
	switch seq[0] {
	case 'C', 'M':
		fail("character set switching is not supported")
		return ""
	case 'X':
		var b strings.Builder
		hex := seq[1:]
		for i := 0; i < len(hex); i += 2 {
			pair := hex[i:min(i+2, len(hex))]
			n, err := strconv.ParseUint(pair, 16, 8)
			if err != nil {
				fail("invalid hexadecimal escape")
				break
			}
			b.WriteRune(rune(n))
		}
		return b.String()
	}
	fail("unknown escape sequence")
	return ""
}
