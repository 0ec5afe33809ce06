package hl7

import (
	"errors"
	"strings"
	"testing"
)

// =========== Sample Batches and Files ===========

const (
	sampleBHS = "BHS|^~\\&||ABCHS||AUSDHSV|20070101123401||||abchs20070101123401-1"
	sampleFHS = "FHS|^~\\&||ABCHS||AUSDHSV|20070101123401|||abchs20070101123401.hl7|"
)

func sampleBody(controlID string) []string {
	return []string{
		"MSH|^~\\&||ABCHS||AUSDHSV|20070101112951||ADT^A04^ADT_A01|" + controlID + "|P|2.5|||NE|NE|AU|ASCII",
		"EVN|A04|20060705000000",
		"PID|1||0000112234^^^100^A||XXXXXXXXXX^^^^^^S||10131113|1||4|^^RICHMOND^^3121||||1201||||||||1100|||||||||AAA",
		"PD1||2",
		"NK1|1||1||||||||||||||||||2",
		"PV1|1|O||||^^^^^1",
	}
}

func lines(parts ...any) string {
	var out []string
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			out = append(out, v)
		case []string:
			out = append(out, v...)
		}
	}
	return strings.Join(out, "\r") + "\r"
}

var (
	sampleBatch      = lines(sampleBHS, sampleBody("12334456778890"), "BTS|1")
	sampleBatchTwo   = lines(sampleBHS, sampleBody("12334456778890"), sampleBody("12334456778891"), "BTS|2")
	sampleBatchBare  = lines(sampleBody("12334456778890"), sampleBody("12334456778891"))
	sampleBatchNoBTS = lines(sampleBHS, sampleBody("12334456778890"))
	sampleBatchNoBHS = lines(sampleBody("12334456778890"), "BTS|1")
	sampleBadBatch   = lines(sampleBHS, sampleBody("12334456778890")[1:], "BTS|1")
	sampleBadBatch1  = lines(sampleBHS, sampleBody("12334456778890")[:2], sampleBHS, sampleBody("x")[2:], "BTS|1")

	sampleFile      = lines(sampleFHS, sampleBHS, sampleBody("12334456778890"), "BTS|1", "FTS|1")
	sampleFileTwo   = lines(sampleFHS, sampleBHS, sampleBody("12334456778890"), sampleBody("12334456778891"), "BTS|2", sampleBHS, sampleBody("12334456778892"), "BTS|1", "FTS|2")
	sampleFileLoose = lines(sampleFHS, sampleBody("12334456778890"), sampleBody("12334456778891"), "FTS|1")
	sampleFileNoFTS = lines(sampleFHS, sampleBHS, sampleBody("12334456778890"), "BTS|1")
	sampleFileNoFHS = lines(sampleBHS, sampleBody("12334456778890"), "BTS|1", "FTS|1")
	sampleFileNoBHS = lines(sampleFHS, sampleBody("12334456778890"), "BTS|1", "FTS|1")
	sampleFileNoBTS = lines(sampleFHS, sampleBHS, sampleBody("12334456778890"), "FTS|1")
	sampleBadFile   = lines(sampleFHS, sampleBHS, sampleBody("12334456778890")[1:], "BTS|1", "FTS|1")
	sampleBadFile1  = lines(sampleFHS, sampleBHS, sampleBody("12334456778890")[:2], sampleBHS, sampleBody("x")[2:], "BTS|1", "FTS|1")
	sampleBadFile2  = lines(sampleFHS, sampleBHS, sampleBody("12334456778890")[:2], sampleFHS, sampleBody("x")[2:], "BTS|1", "FTS|1")
	sampleBadFile3  = lines(sampleFHS, sampleBody("12334456778890")[1:], "FTS|1")
)

// =========== Batch Tests ===========

func TestParseBatch(t *testing.T) {
	batch, err := ParseBatch(sampleBatch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", batch.Len())
	}
	if batch.Header() == nil || batch.Header().ID() != "BHS" {
		t.Errorf("expected BHS header, got %v", batch.Header())
	}
	if batch.Trailer() == nil || batch.Trailer().String() != "BTS|1" {
		t.Errorf("expected BTS|1 trailer, got %v", batch.Trailer())
	}
	msg := batch.Messages()[0]
	if v, _ := msg.Get("MSH.10"); v != "12334456778890" {
		t.Errorf("unexpected control id %q", v)
	}
	if got := batch.String(); got != sampleBatch {
		t.Errorf("round trip mismatch:\n got %q\nwant %q", got, sampleBatch)
	}
	if v, _ := batch.Header().Extract(Accessor{FieldNum: 11}); v != "abchs20070101123401-1" {
		t.Errorf("unexpected BHS-11 %q", v)
	}
}

func TestParseBatch_MultipleMessages(t *testing.T) {
	batch, err := ParseBatch(sampleBatchTwo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := batch.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[1].Len() != 6 {
		t.Errorf("expected 6 segments, got %d", msgs[1].Len())
	}
	if v, _ := msgs[1].Get("MSH.10"); v != "12334456778891" {
		t.Errorf("unexpected control id %q", v)
	}
	encoded, err := batch.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	if encoded != sampleBatchTwo {
		t.Errorf("round trip mismatch")
	}
}

func TestParseBatch_WithoutEnvelope(t *testing.T) {
	batch, err := ParseBatch(sampleBatchBare)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Header() != nil || batch.Trailer() != nil {
		t.Error("expected no envelope")
	}
	if batch.Len() != 2 {
		t.Errorf("expected 2 messages, got %d", batch.Len())
	}
	if got := batch.String(); got != sampleBatchBare {
		t.Errorf("round trip mismatch")
	}
}

func TestParseBatch_StrayTrailerIgnored(t *testing.T) {
	batch, err := ParseBatch(sampleBatchNoBHS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Trailer() != nil {
		t.Error("expected stray BTS to be ignored")
	}
	if batch.Len() != 1 {
		t.Errorf("expected 1 message, got %d", batch.Len())
	}
}

func TestParseBatch_Errors(t *testing.T) {
	tests := map[string]string{
		"header without trailer": sampleBatchNoBTS,
		"segment before MSH":     sampleBadBatch,
		"duplicate header":       sampleBadBatch1,
		"file header in batch":   sampleFile,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseBatch(text); !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}
}

func TestBatch_Construction(t *testing.T) {
	env := DefaultEnv()
	batch := env.Factory.NewBatch(env, nil)
	batch.Append(mustParse(t, strings.Join(sampleBody("1"), "\r")))

	if err := batch.SetHeader(batch.CreateHeader()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := batch.Encode(); !errors.Is(err, ErrMalformedEnvelope) {
		t.Errorf("expected ErrMalformedEnvelope for header without trailer, got %v", err)
	}

	trailer := batch.CreateTrailer()
	if err := batch.SetTrailer(trailer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := trailer.Assign(Accessor{FieldNum: 1}, "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := batch.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "BHS|^~\\&|\rMSH|") || !strings.HasSuffix(out, "\rBTS|1\r") {
		t.Errorf("unexpected batch %q", out)
	}
}

func TestBatch_SetHeaderRejectsWrongSegment(t *testing.T) {
	env := DefaultEnv()
	batch := env.Factory.NewBatch(env, nil)
	if err := batch.SetHeader(ParseSegment("FHS|^~\\&", env.Delimiters)); !errors.Is(err, ErrMalformedSegment) {
		t.Errorf("expected ErrMalformedSegment, got %v", err)
	}
	if err := batch.SetTrailer(ParseSegment("FTS|1", env.Delimiters)); !errors.Is(err, ErrMalformedSegment) {
		t.Errorf("expected ErrMalformedSegment, got %v", err)
	}
	if err := batch.SetHeader(nil); err != nil {
		t.Errorf("clearing the header should succeed, got %v", err)
	}
}

// =========== File Tests ===========

func TestParseFile(t *testing.T) {
	file, err := ParseFile(sampleFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if file.Header() == nil || file.Header().ID() != "FHS" {
		t.Error("expected FHS header")
	}
	if file.Trailer() == nil || file.Trailer().String() != "FTS|1" {
		t.Error("expected FTS|1 trailer")
	}
	batches := file.Batches()
	if len(batches) != 1 || batches[0].Len() != 1 {
		t.Fatalf("expected 1 batch with 1 message, got %d batches", len(batches))
	}
	if got := file.String(); got != sampleFile {
		t.Errorf("round trip mismatch:\n got %q\nwant %q", got, sampleFile)
	}
}

func TestParseFile_MultipleBatches(t *testing.T) {
	file, err := ParseFile(sampleFileTwo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	batches := file.Batches()
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].Len() != 2 || batches[1].Len() != 1 {
		t.Errorf("unexpected message counts %d, %d", batches[0].Len(), batches[1].Len())
	}
	if v, _ := batches[1].Messages()[0].Get("MSH.10"); v != "12334456778892" {
		t.Errorf("unexpected control id %q", v)
	}
	encoded, err := file.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	if encoded != sampleFileTwo {
		t.Errorf("round trip mismatch")
	}
}

func TestParseFile_LooseMessages(t *testing.T) {
	file, err := ParseFile(sampleFileLoose)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	batches := file.Batches()
	if len(batches) != 1 {
		t.Fatalf("expected 1 synthetic batch, got %d", len(batches))
	}
	if batches[0].Header() != nil || batches[0].Trailer() != nil {
		t.Error("expected synthetic batch to have no envelope")
	}
	if batches[0].Len() != 2 {
		t.Errorf("expected 2 messages, got %d", batches[0].Len())
	}
	if got := file.String(); got != sampleFileLoose {
		t.Errorf("round trip mismatch")
	}
}

func TestParseFile_WithoutFileEnvelope(t *testing.T) {
	file, err := ParseFile(sampleFileNoFHS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if file.Header() != nil || file.Trailer() != nil {
		t.Error("expected stray FTS to be ignored")
	}
	if len(file.Batches()) != 1 {
		t.Errorf("expected 1 batch, got %d", len(file.Batches()))
	}
}

func TestParseFile_StrayBatchTrailer(t *testing.T) {
	file, err := ParseFile(sampleFileNoBHS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b := file.Batches(); len(b) != 1 || b[0].Header() != nil {
		t.Error("expected one synthetic batch")
	}
}

func TestParseFile_Errors(t *testing.T) {
	tests := map[string]string{
		"file header without trailer":  sampleFileNoFTS,
		"batch header without trailer": sampleFileNoBTS,
		"segment before MSH":           sampleBadFile,
		"duplicate batch header":       sampleBadFile1,
		"duplicate file header":        sampleBadFile2,
		"segment before MSH loose":     sampleBadFile3,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseFile(text); !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}
}

func TestFile_Encode(t *testing.T) {
	env := DefaultEnv()
	file := env.Factory.NewFile(env, nil)
	_ = file.SetTrailer(file.CreateTrailer())
	if _, err := file.Encode(); !errors.Is(err, ErrMalformedEnvelope) {
		t.Errorf("expected ErrMalformedEnvelope, got %v", err)
	}
	_ = file.SetHeader(file.CreateHeader())
	if got, err := file.Encode(); err != nil || got != "FHS|^~\\&|\rFTS\r" {
		t.Errorf("unexpected encoding %q (%v)", got, err)
	}
}

func TestFile_Clone(t *testing.T) {
	file, _ := ParseFile(sampleFile)
	clone := file.Clone().(*File)
	_ = clone.Header().Assign(Accessor{FieldNum: 4}, "OTHER")
	if v, _ := file.Header().Extract(Accessor{FieldNum: 4}); v != "ABCHS" {
		t.Errorf("clone mutation leaked: %q", v)
	}
}

// =========== Classification Tests ===========

func TestParseHL7_Classifies(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind string
	}{
		{"message", sampleORU, "message"},
		{"batch", sampleBatch, "batch"},
		{"bare batch", sampleBatchBare, "batch"},
		{"file", sampleFile, "file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := ParseHL7(tt.text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var kind string
			switch node.(type) {
			case *Message:
				kind = "message"
			case *Batch:
				kind = "batch"
			case *File:
				kind = "file"
			}
			if kind != tt.kind {
				t.Errorf("expected %s, got %T", tt.kind, node)
			}
		})
	}
	if _, err := ParseHL7("PID|1"); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
}

func TestDetection(t *testing.T) {
	if !IsHL7(sampleORU) {
		t.Error("expected sample message to be HL7")
	}
	if IsHL7("") || IsHL7("PID|1") {
		t.Error("expected non-messages to be rejected")
	}
	if IsHL7(sampleBatchBare) {
		t.Error("a message with two MSH segments is not a single message")
	}
	if !IsBatch(sampleBatch) || !IsBatch(sampleBatchBare) {
		t.Error("expected batches to be detected")
	}
	if IsBatch(sampleFileLoose) || IsBatch(sampleORU) {
		t.Error("unexpected batch detection")
	}
	if !IsFile(sampleFile) || !IsFile(sampleBatch) {
		t.Error("expected files to be detected")
	}
	if IsHL7(sampleFile) {
		t.Error("a file is not a single message")
	}
}

func TestSplitFile(t *testing.T) {
	messages := SplitFile(sampleFileTwo)
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, m := range messages {
		if !strings.HasSuffix(m, "\r") || strings.HasSuffix(m, "\r\r") {
			t.Errorf("message %d not terminated by a single CR: %q", i, m)
		}
	}
	msg := mustParse(t, messages[0])
	var ids []string
	for _, child := range msg.Children() {
		ids = append(ids, child.(*Segment).ID())
	}
	if got := strings.Join(ids, ","); got != "MSH,EVN,PID,PD1,NK1,PV1" {
		t.Errorf("unexpected segments %s", got)
	}
}

func TestSplitFile_TerminatesMessages(t *testing.T) {
	messages := SplitFile("BHS|^~\\&\rMSH|^~\\&|A\rPID|1\rMSH|^~\\&|B\rBTS|2\r")
	want := []string{"MSH|^~\\&|A\rPID|1\r", "MSH|^~\\&|B\r"}
	if len(messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(messages))
	}
	for i := range want {
		if messages[i] != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], messages[i])
		}
	}
}

func TestSplitFile_ReportsOrphans(t *testing.T) {
	var diags []Diagnostic
	messages := SplitFile(sampleBadFile3, WithDiagnostics(func(d Diagnostic) { diags = append(diags, d) }))
	if len(messages) != 0 {
		t.Errorf("expected no messages, got %d", len(messages))
	}
	if len(diags) != 5 {
		t.Errorf("expected 5 diagnostics, got %d", len(diags))
	}
}
