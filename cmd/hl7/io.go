package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehr/hl7/internal/platform/hl7api"
	"github.com/ehr/hl7/pkg/hl7"
)

var gzipMagic = []byte{0x1f, 0x8b}

// readInput returns the decoded text of the named file, or of stdin when no
// file (or "-") is given. Gzip input is detected by its magic number.
func readInput(cmd *cobra.Command, args []string, opts *cliOptions) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}

	br := bufio.NewReader(r)
	if head, _ := br.Peek(len(gzipMagic)); string(head) == string(gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return "", fmt.Errorf("open gzip input: %w", err)
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	text, err := hl7.Decode(data, opts.encoding)
	if err != nil {
		return "", err
	}
	if opts.loose {
		text = normalizeNewlines(text)
	}
	return text, nil
}

func readMessage(cmd *cobra.Command, args []string, opts *cliOptions) (*hl7.Message, error) {
	text, err := readInput(cmd, args, opts)
	if err != nil {
		return nil, err
	}
	return hl7.Parse(text)
}

// normalizeNewlines turns CRLF and LF line endings into segment separators.
func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\r")
	return strings.ReplaceAll(text, "\n", "\r")
}

func writeTree(w io.Writer, tree hl7api.Tree, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q (want json, yaml or hl7)", format)
}

func writeHL7(cmd *cobra.Command, node hl7.Node, opts *cliOptions) error {
	out := node.String()
	if opts.newlines {
		out = strings.ReplaceAll(strings.TrimRight(out, "\r"), "\r", "\n")
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
