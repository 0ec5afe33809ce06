package hl7

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// LookupEncoding resolves a character set name such as "latin1",
// "ISO-8859-1" or "windows-1252". IANA names are tried before the WHATWG
// labels so that latin1 decodes as ISO-8859-1.
func LookupEncoding(name string) (encoding.Encoding, error) {
	if e, err := ianaindex.IANA.Encoding(name); err == nil && e != nil {
		return e, nil
	}
	if e, err := htmlindex.Get(name); err == nil {
		return e, nil
	}
	return nil, fmt.Errorf("%w: unknown character encoding %q", ErrMalformedInput, name)
}

// Decode turns raw bytes into text. An empty name means UTF-8, in which
// case invalid sequences are rejected rather than replaced.
func Decode(data []byte, name string) (string, error) {
	if name == "" || isUTF8Name(name) {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: input is not valid UTF-8", ErrMalformedInput)
		}
		return string(data), nil
	}
	enc, err := LookupEncoding(name)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: decoding %s: %v", ErrMalformedInput, name, err)
	}
	return string(out), nil
}

func isUTF8Name(name string) bool {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "utf8", "unicode11utf8":
		return true
	}
	return false
}
