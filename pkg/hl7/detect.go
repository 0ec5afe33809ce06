package hl7

import "strings"

// IsHL7 reports whether text looks like a single HL7 message: it begins
// with MSH followed by a field separator and contains no second MSH.
func IsHL7(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) < 4 || text[:3] != "MSH" {
		return false
	}
	return !strings.Contains(text, "\rMSH"+text[3:4])
}

// IsBatch reports whether text looks like a batch: it begins with BHS, or
// carries more than one MSH and does not begin with FHS.
func IsBatch(text string) bool {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "BHS") {
		return true
	}
	return !strings.HasPrefix(text, "FHS") && strings.Count(text, "MSH") > 1
}

// IsFile reports whether text looks like a file of batches. Every batch
// also reads as a file.
func IsFile(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "FHS") || IsBatch(text)
}

// SplitFile splits the text of a file or batch into the raw text of each
// message, dropping envelope segments. Segments that arrive before any MSH
// are skipped and reported to the WithDiagnostics sink.
func SplitFile(text string, opts ...Option) []string {
	o := newOptions(opts)
	var (
		messages []string
		current  []string
	)
	flush := func() {
		if len(current) > 0 {
			messages = append(messages, strings.Join(current, "\r")+"\r")
			current = nil
		}
	}
	for _, line := range segmentLines(text) {
		switch id := segmentID(line); id {
		case "FHS", "BHS", "BTS", "FTS":
			continue
		case "MSH":
			flush()
			current = []string{line}
		default:
			if current == nil {
				o.diagnostics.report(Diagnostic{Sequence: line, Input: text, Offset: strings.Index(text, line), Reason: "segment received before message header"})
				continue
			}
			current = append(current, line)
		}
	}
	flush()
	return messages
}
