package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/engine"
	"github.com/datallboy/hlsget/internal/infra/config"
	"github.com/datallboy/hlsget/internal/platform"
	"github.com/datallboy/hlsget/internal/processor"
)

type downloadOptions struct {
	concurrency int
	policy      string
	mux         string
	outDir      string
	quiet       bool
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var opts downloadOptions

	cmd := &cobra.Command{
		Use:   "download [manifest-url] [output-name]",
		Short: "Download a media playlist into one file",
		Long: "Download every segment of an HLS media playlist and join them into\n" +
			"<out-dir>/<output-name>.<ext>. Missing arguments are asked for on stdin.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, cfg); err != nil {
				return err
			}
			return runDownload(cmd, cfg, args, opts.quiet)
		},
	}

	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", 0, "Number of parallel segment downloads")
	cmd.Flags().StringVar(&opts.policy, "policy", "", "Failure policy: fail-fast or partial")
	cmd.Flags().StringVar(&opts.mux, "mux", "", "Muxer: ffmpeg or concat")
	cmd.Flags().StringVarP(&opts.outDir, "out-dir", "o", "", "Directory for the finished file")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Disable progress output and console logging")

	return cmd
}

// apply copies explicitly set flags over the loaded configuration.
func (o downloadOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.Download.Concurrency = o.concurrency
	}
	if flags.Changed("policy") {
		cfg.Download.FailurePolicy = o.policy
	}
	if flags.Changed("mux") {
		cfg.Mux.Mode = o.mux
	}
	if flags.Changed("out-dir") {
		cfg.Download.OutDir = o.outDir
	}
	if o.quiet {
		cfg.Log.IncludeStdout = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

func runDownload(cmd *cobra.Command, cfg *config.Config, args []string, quiet bool) error {
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	manifestURL, err := argOrPrompt(args, 0, in, out, "M3U8 URL", domain.ErrInvalidURL)
	if err != nil {
		return err
	}
	outputName, err := argOrPrompt(args, 1, in, out, "output file name (without extension)", domain.ErrValidation)
	if err != nil {
		return err
	}

	// Reject bad names before touching the network
	if err := processor.ValidateName(outputName); err != nil {
		return err
	}

	if err := platform.ValidateDependencies(cfg.Mux); err != nil {
		return err
	}

	appCtx, closeApp, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer closeApp()

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := domain.NewJob(ksuid.New().String(), manifestURL, outputName)
	save := func() {
		if appCtx.Store == nil {
			return
		}
		if err := appCtx.Store.SaveJob(context.Background(), job); err != nil {
			appCtx.Logger.Warn("Could not record job %s: %v", job.ID, err)
		}
	}
	save()

	stopProgress := func() {}
	if f, ok := out.(*os.File); ok && !quiet && engine.ProgressEnabled(f) {
		progCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			engine.StartCLIProgress(progCtx, job, out)
		}()
		stopProgress = func() {
			cancel()
			<-done
		}
	}

	report, err := engine.NewDownloader(appCtx).Download(sigCtx, job)
	stopProgress()

	job.Finish(engine.StatusFor(err), report, err)
	save()

	if !quiet {
		printReport(out, report, err)
	}
	return err
}

// argOrPrompt returns args[i] or asks for it on in. An empty answer is
// reported as missing.
func argOrPrompt(args []string, i int, in *bufio.Reader, out io.Writer, label string, missing error) (string, error) {
	if i < len(args) {
		return strings.TrimSpace(args[i]), nil
	}

	fmt.Fprintf(out, "Enter the %s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}

	value := strings.TrimSpace(line)
	if value == "" {
		return "", fmt.Errorf("%w: no %s given", missing, label)
	}
	return value, nil
}

func printReport(w io.Writer, report *domain.Report, err error) {
	if report == nil {
		return
	}

	var partial *domain.PartialFailureError
	switch {
	case err == nil:
		fmt.Fprintf(w, "Saved %s (%d segments, %s in %s)\n", report.OutputPath, report.Emitted,
			humanize.IBytes(report.Bytes), report.Elapsed.Truncate(time.Millisecond))
	case errors.As(err, &partial):
		fmt.Fprintf(w, "Saved %s with %d of %d segments; missing: %s\n", report.OutputPath, report.Emitted,
			report.Segments, domain.FailedIndices(partial.Failed))
	}
}
