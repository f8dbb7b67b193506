package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/runreveal/kawa"
	"github.com/runreveal/lib/await"
	"github.com/runreveal/lib/loader"
	"github.com/runreveal/utmpscan/internal"
	"github.com/runreveal/utmpscan/internal/destinations/objbatch"
	"github.com/runreveal/utmpscan/internal/destinations/printer"
	"github.com/runreveal/utmpscan/internal/destinations/runreveal"
	"github.com/runreveal/utmpscan/internal/metrics"
	"github.com/runreveal/utmpscan/internal/pipeline"
	"github.com/runreveal/utmpscan/internal/report"
	"github.com/runreveal/utmpscan/internal/sources/wtmp"
	"github.com/runreveal/utmpscan/internal/types"
	"github.com/spf13/cobra"
)

// collectors is shared by every configured source so one endpoint serves
// them all.
var collectors = metrics.New()

func init() {
	// ---------------Sources-------------------------
	loader.Register("wtmp", func() loader.Builder[kawa.Source[types.Event]] {
		return &WtmpConfig{}
	})

	// ---------------Destinations-------------------------
	loader.Register("printer", func() loader.Builder[kawa.Destination[types.Event]] {
		return &PrinterConfig{}
	})
	loader.Register("archive", func() loader.Builder[kawa.Destination[types.Event]] {
		return &objbatch.BlobConfig{}
	})
	loader.Register("runreveal", func() loader.Builder[kawa.Destination[types.Event]] {
		return &RunRevealConfig{}
	})
}

type Config struct {
	Sources      map[string]loader.Loader[kawa.Source[types.Event]]      `json:"sources"`
	Destinations map[string]loader.Loader[kawa.Destination[types.Event]] `json:"destinations"`
	MetricsAddr  string                                                  `json:"metricsAddr"`
}

type WtmpConfig struct {
	// Path is the wtmpx or utmpx file to scan
	Path string `json:"path"`
	// MaxScore drops records above it; nil means the default cutoff
	MaxScore *int `json:"maxScore"`
	Follow   bool `json:"follow"`

	PollInterval      time.Duration `json:"pollInterval"`
	DedupSize         int           `json:"dedupSize"`
	HighWatermarkFile string        `json:"highWatermarkFile"`
}

func (c *WtmpConfig) Configure() (kawa.Source[types.Event], error) {
	if c.Path == "" {
		return nil, errors.New("wtmp: path is required")
	}
	slog.Info(fmt.Sprintf("configuring wtmp source for path: %s", c.Path))

	opts := []wtmp.Option{
		wtmp.WithPath(c.Path),
		wtmp.WithFollow(c.Follow),
		wtmp.WithPollInterval(c.PollInterval),
		wtmp.WithMetrics(collectors),
		wtmp.WithCommitInterval(5 * time.Second),
	}
	if c.MaxScore != nil {
		opts = append(opts, wtmp.WithMaxScore(*c.MaxScore))
	}

	if c.Follow {
		hwm := c.HighWatermarkFile
		if hwm == "" {
			dir, err := internal.StateDir()
			if err != nil {
				return nil, err
			}
			hwm = filepath.Join(dir, hwmName(c.Path))
		}
		dedup := c.DedupSize
		if dedup == 0 {
			dedup = 4096
		}
		opts = append(opts, wtmp.WithHighWatermarkFile(hwm), wtmp.WithDedupSize(dedup))
	}
	return wtmp.New(opts...), nil
}

// hwmName derives a per-file watermark name so sources never share one.
func hwmName(path string) string {
	clean := strings.Trim(filepath.ToSlash(filepath.Clean(path)), "/")
	return "hwm-" + strings.ReplaceAll(clean, "/", "_") + ".json"
}

type PrinterConfig struct {
	JSON     bool `json:"json"`
	Color    bool `json:"color"`
	MaxScore *int `json:"maxScore"`
}

func (c *PrinterConfig) Configure() (kawa.Destination[types.Event], error) {
	slog.Info("configuring printer")
	if c.JSON {
		return printer.New(printer.WithJSON(os.Stdout)), nil
	}
	opts := []report.Option{report.WithColor(c.Color && useColor(os.Stdout, false))}
	if c.MaxScore != nil {
		opts = append(opts, report.WithMaxScore(*c.MaxScore))
	}
	return printer.New(printer.WithReporter(report.New(opts...))), nil
}

type RunRevealConfig struct {
	WebhookURL string        `json:"webhookURL"`
	BatchSize  int           `json:"batchSize"`
	FlushFreq  time.Duration `json:"flushFreq"`
}

func (c *RunRevealConfig) Configure() (kawa.Destination[types.Event], error) {
	slog.Info("configuring runreveal")
	if c.WebhookURL == "" {
		return nil, errors.New("runreveal: webhookURL is required")
	}
	return runreveal.New(
		runreveal.WithWebhookURL(c.WebhookURL),
		runreveal.WithBatchSize(c.BatchSize),
		runreveal.WithFlushFrequency(c.FlushFreq),
	), nil
}

func loadConfig(path string) (*pipeline.Pipeline, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := loader.LoadConfig(bts, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return buildPipeline(cfg)
}

func buildPipeline(cfg Config) (*pipeline.Pipeline, error) {
	var opts []pipeline.Option
	for name, l := range cfg.Sources {
		src, err := l.Configure()
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", name, err)
		}
		opts = append(opts, pipeline.WithSource(name, src))
	}
	for name, l := range cfg.Destinations {
		dst, err := l.Configure()
		if err != nil {
			return nil, fmt.Errorf("destination %s: %w", name, err)
		}
		opts = append(opts, pipeline.WithDestination(name, dst))
	}
	if cfg.MetricsAddr != "" {
		addr := cfg.MetricsAddr
		opts = append(opts, pipeline.WithRunner("metrics", await.RunFunc(func(ctx context.Context) error {
			return collectors.ListenAndServe(ctx, addr)
		})))
	}
	return pipeline.New(opts...), nil
}

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sources and destinations described by a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return p.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the pipeline config (JSON with comments)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
