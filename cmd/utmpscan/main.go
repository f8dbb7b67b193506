// utmpscan hunts for forged or corrupted entries in Solaris wtmpx/utmpx
// files.
//
//	utmpscan scan --path /var/adm/wtmpx     score every record once
//	utmpscan run --config utmpscan.json     run a long-lived pipeline
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/runreveal/utmpscan/internal/destinations/printer"
	"github.com/runreveal/utmpscan/internal/pipeline"
	"github.com/runreveal/utmpscan/internal/report"
	"github.com/runreveal/utmpscan/internal/sources/wtmp"
	"github.com/runreveal/utmpscan/internal/utmp"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type scanFlags struct {
	path     string
	maxScore int
	pause    bool
	noColor  bool
	json     bool
	follow   bool
}

func newRootCmd() *cobra.Command {
	var verbose bool
	flags := &scanFlags{}

	root := &cobra.Command{
		Use:           "utmpscan",
		Short:         "Score wtmpx/utmpx records for signs of tampering",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.ErrOrStderr(), verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, flags)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	addScanFlags(root, flags)

	scan := &cobra.Command{
		Use:   "scan",
		Short: "Scan a file once and print the records that score at or below the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, flags)
		},
	}
	addScanFlags(scan, flags)

	root.AddCommand(scan, newRunCmd())
	return root
}

func addScanFlags(cmd *cobra.Command, f *scanFlags) {
	cmd.Flags().StringVarP(&f.path, "path", "p", "", "path to the wtmpx or utmpx file")
	cmd.Flags().IntVarP(&f.maxScore, "score", "s", report.DefaultMaxScore, "show records scoring at most this much")
	cmd.Flags().BoolVarP(&f.pause, "pause", "x", false, fmt.Sprintf("wait for enter after records scoring %d or more", report.PauseThreshold))
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "disable coloured output")
	cmd.Flags().BoolVar(&f.json, "json", false, "print one JSON event per line")
	cmd.Flags().BoolVarP(&f.follow, "follow", "f", false, "keep watching the file for new records")
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func runScan(cmd *cobra.Command, f *scanFlags) error {
	if f.path == "" {
		return fmt.Errorf("a file to scan is required (--path)")
	}

	var dst *printer.Printer
	out := cmd.OutOrStdout()
	if f.json {
		dst = printer.New(printer.WithJSON(out))
	} else {
		opts := []report.Option{report.WithMaxScore(f.maxScore)}
		if useColor(out, f.noColor) {
			opts = append(opts, report.WithColor(true), report.WithWriter(colorable.NewColorable(out.(*os.File))))
		} else {
			opts = append(opts, report.WithWriter(out))
		}
		if f.pause {
			opts = append(opts, report.WithPause(cmd.InOrStdin()))
		}
		dst = printer.New(printer.WithReporter(report.New(opts...)))
	}

	src := wtmp.New(
		wtmp.WithPath(f.path),
		wtmp.WithMaxScore(f.maxScore),
		wtmp.WithFollow(f.follow),
		wtmp.WithScorer(utmp.Scorer{Clock: utmp.SystemClock}),
	)
	slog.Debug(fmt.Sprintf("scanning %s with max score %d", f.path, f.maxScore))

	p := pipeline.New(
		pipeline.WithSource("wtmp", src),
		pipeline.WithDestination("printer", dst),
	)
	return p.Run(cmd.Context())
}

// useColor is true when out is a terminal and colour was not turned off.
func useColor(out io.Writer, disabled bool) bool {
	if disabled || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
