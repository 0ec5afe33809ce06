package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/hl7/internal/platform/hl7api"
	"github.com/ehr/hl7/pkg/hl7"
)

// cliOptions holds the persistent flags shared by every subcommand.
type cliOptions struct {
	encoding string
	loose    bool
	format   string
	newlines bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:          "hl7",
		Short:        "Parse, query and serve HL7 v2 messages",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.encoding, "encoding", "", "character encoding of the input (default UTF-8)")
	pf.BoolVar(&opts.loose, "loose", false, "accept LF and CRLF as segment separators")
	pf.StringVar(&opts.format, "format", "json", "output format for trees: json, yaml or hl7")
	pf.BoolVar(&opts.newlines, "newlines", false, "print HL7 output with one segment per line")

	root.AddCommand(
		serveCmd(),
		parseCmd(opts),
		getCmd(opts),
		setCmd(opts),
		ackCmd(opts),
		escapeCmd(),
		unescapeCmd(),
		classifyCmd(opts),
	)
	return root
}

func parseCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a message, batch or file and print its tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args, opts)
			if err != nil {
				return err
			}
			node, err := hl7.ParseHL7(text)
			if err != nil {
				return err
			}
			if opts.format == "hl7" {
				return writeHL7(cmd, node, opts)
			}
			return writeTree(cmd.OutOrStdout(), hl7api.NewTree(node), opts.format)
		},
	}
}

func getCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY [file]",
		Short: "Print the value at KEY, e.g. PID.5.1 or OBX*.5",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := hl7.ParseKey(args[0])
			if err != nil {
				return err
			}
			msg, err := readMessage(cmd, args[1:], opts)
			if err != nil {
				return err
			}
			values, err := msg.ExtractAll(acc)
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}

func setCmd(opts *cliOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "set KEY VALUE [file]",
		Short: "Assign VALUE at KEY and print the updated message",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readMessage(cmd, args[2:], opts)
			if err != nil {
				return err
			}
			set := msg.Set
			if raw {
				set = msg.SetRaw
			}
			if err := set(args[0], args[1]); err != nil {
				return err
			}
			return writeHL7(cmd, msg, opts)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "store VALUE without escaping separators")
	return cmd
}

func ackCmd(opts *cliOptions) *cobra.Command {
	var (
		code string
		ack  hl7.ACKOptions
	)
	cmd := &cobra.Command{
		Use:   "ack [file]",
		Short: "Print the acknowledgment for a message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readMessage(cmd, args, opts)
			if err != nil {
				return err
			}
			out, err := msg.CreateACK(strings.ToUpper(code), &ack)
			if err != nil {
				return err
			}
			return writeHL7(cmd, out, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&code, "code", hl7.AckAccept, "acknowledgment code: AA, AE or AR")
	f.StringVar(&ack.MessageID, "message-id", "", "MSH-10 of the acknowledgment (generated when empty)")
	f.StringVar(&ack.Application, "application", "", "MSH-3 of the acknowledgment")
	f.StringVar(&ack.Facility, "facility", "", "MSH-4 of the acknowledgment")
	return cmd
}

func escapeCmd() *cobra.Command {
	var header string
	cmd := &cobra.Command{
		Use:   "escape TEXT",
		Short: "Escape separators and control characters in TEXT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := hl7.DetectDelimiters("MSH" + header)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hl7.Escape(d, args[0], nil))
			return nil
		},
	}
	cmd.Flags().StringVar(&header, "delimiters", `|^~\&`, "field separator followed by the encoding characters")
	return cmd
}

func unescapeCmd() *cobra.Command {
	var header string
	cmd := &cobra.Command{
		Use:   "unescape TEXT",
		Short: "Resolve escape sequences in TEXT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := hl7.DetectDelimiters("MSH" + header)
			if err != nil {
				return err
			}
			sink := func(diag hl7.Diagnostic) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s at offset %d: %q\n", diag.Reason, diag.Offset, diag.Sequence)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hl7.Unescape(d, args[0], nil, sink))
			return nil
		},
	}
	cmd.Flags().StringVar(&header, "delimiters", `|^~\&`, "field separator followed by the encoding characters")
	return cmd
}

func classifyCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file]",
		Short: "Report whether the input is a message, batch or file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args, opts)
			if err != nil {
				return err
			}
			kind := "unknown"
			switch trimmed := strings.TrimSpace(text); {
			case strings.HasPrefix(trimmed, "FHS"):
				kind = "file"
			case hl7.IsBatch(text):
				kind = "batch"
			case hl7.IsHL7(text):
				kind = "message"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", kind, len(hl7.SplitFile(text)))
			return nil
		},
	}
}
