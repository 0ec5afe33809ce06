package hl7

import "github.com/rs/zerolog"

// LogDiagnostics returns a sink that writes each diagnostic as a warning.
// The offending sequence is logged as "code" and the full input as "value".
func LogDiagnostics(logger zerolog.Logger) DiagnosticSink {
	return func(d Diagnostic) {
		logger.Warn().
			Str("code", d.Sequence).
			Str("value", d.Input).
			Int("offset", d.Offset).
			Str("reason", d.Reason).
			Msg("hl7 diagnostic")
	}
}
