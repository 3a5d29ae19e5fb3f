// Command smp-log views and analyzes SMP protocol capture files.
//
// Capture files are written by smpd when it runs with -protocol-log.
//
// Usage:
//
//	smp-log <command> [flags] <file.smplog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View only decoded SMP headers
//	smp-log view -layer smp smpd.smplog
//
//	# View error responses for the image group
//	smp-log view -group image -errors smpd.smplog
//
//	# Export to CSV
//	smp-log export -format csv -o smpd.csv smpd.smplog
//
//	# Keep one TCP connection
//	smp-log filter -transport-id 3f2a9c1e-... -o conn.smplog smpd.smplog
//
//	# Show statistics
//	smp-log stats smpd.smplog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/smp-protocol/smp-go/cmd/smp-log/commands"
)

const usage = `smp-log - SMP Protocol Log Analyzer

Usage:
  smp-log <command> [flags] <file.smplog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "smp-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set whose usage text names the command.
func newFlagSet(name, summary, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "smp-log %s - %s\n\nUsage:\n  smp-log %s\n\nFlags:\n", name, summary, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// pathArg parses args and returns the single log file argument.
func pathArg(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View log file in human-readable format", "view [flags] <file.smplog>")
	layer := fs.String("layer", "", "Filter by layer (transport, smp, mgmt)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	group := fs.String("group", "", "Filter by management group (name or number)")
	errorsOnly := fs.Bool("errors", false, "Show only errors and error responses")

	path := pathArg(fs, args)

	filter := commands.ViewFilter{ErrorsOnly: *errorsOnly}

	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fatal(err)
		}
		filter.Layer = &l
	}

	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fatal(err)
		}
		filter.Direction = &d
	}

	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fatal(err)
		}
		filter.Category = &c
	}

	if *group != "" {
		g, err := commands.ParseGroupFlag(*group)
		if err != nil {
			fatal(err)
		}
		filter.Group = &g
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fatal(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export log file to JSON or CSV format", "export [flags] <file.smplog>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path := pathArg(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fatal(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter log file and write to new file", "filter [flags] <file.smplog>")
	output := fs.String("o", "", "Output file (required)")
	transportID := fs.String("transport-id", "", "Filter by transport or connection ID")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	layer := fs.String("layer", "", "Filter by layer (transport, smp, mgmt)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	group := fs.String("group", "", "Filter by management group (name or number)")
	errorsOnly := fs.Bool("errors", false, "Keep only errors and error responses")

	path := pathArg(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, commands.FilterOptions{
		Output:      *output,
		TransportID: *transportID,
		TimeStart:   *timeStart,
		TimeEnd:     *timeEnd,
		Layer:       *layer,
		Direction:   *direction,
		Category:    *category,
		Group:       *group,
		ErrorsOnly:  *errorsOnly,
	})
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "%d events written to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the log file", "stats <file.smplog>")

	path := pathArg(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fatal(err)
	}
}
