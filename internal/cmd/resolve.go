package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refreshrelay/refreshrelay/internal/observability"
	"github.com/refreshrelay/refreshrelay/internal/output"
	"github.com/refreshrelay/refreshrelay/internal/server/handlers"
)

// ErrResolveFailed is returned when at least one target could not be resolved.
var ErrResolveFailed = errors.New("one or more targets could not be resolved")

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>...",
	Short: "Resolve refresh redirects for one or more URLs",
	Long: `Fetch each URL and report where the relay would send a client.

Targets pass the same policy as the server (https only, allowed prefixes,
private addresses) unless configuration relaxes it.

Examples:
  refreshrelay resolve https://example.org/old-page
  refreshrelay resolve --output json https://a.example https://b.example
  refreshrelay resolve --targets-file urls.txt --output markdown --out report.md`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringP("output", "o", "table", "Output format: table, json, markdown, yaml")
	resolveCmd.Flags().String("out", "", "Write output to file (or into a directory) instead of stdout")
	resolveCmd.Flags().String("targets-file", "", "Read target URLs from file, one per line (- for stdin)")
	resolveCmd.Flags().Int("concurrency", 0, "Concurrent resolutions (default: workers from config)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	targetsFile, err := cmd.Flags().GetString("targets-file")
	if err != nil {
		return err
	}
	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}

	targets, err := resolveTargets(args, targetsFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg := loadConfig(cmd, nil)
	if concurrency <= 0 {
		concurrency = cfg.Workers
	}

	startedAt := time.Now()
	results := resolveAll(cmd.Context(), buildRelayOptions(cfg), targets, concurrency)

	rendered, err := output.NewFormatter(format).Format(results)
	if err != nil {
		return err
	}

	sink, err := openSink(sinkPath(outPath, format), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(sink.writer, strings.TrimRight(rendered, "\n")); err != nil {
		_ = sink.close()
		return err
	}
	if err := sink.close(); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if logger := observability.CLILogger; logger != nil {
		logger.Debug("Resolve complete",
			zap.Int("targets", len(targets)),
			zap.Int("failed", failed),
			zap.Int("concurrency", concurrency),
			zap.String("out", sink.path),
			zap.Duration("elapsed", time.Since(startedAt)))
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrResolveFailed, failed, len(targets))
	}
	return nil
}

type resolveJob struct {
	index  int
	target string
}

// resolveAll resolves targets with at most concurrency in flight. Results keep
// the input order. Per-target failures are recorded, not fatal.
func resolveAll(ctx context.Context, opts handlers.RelayOptions, targets []string, concurrency int) []output.Result {
	results := make([]output.Result, len(targets))
	jobs := make(chan resolveJob)

	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(targets) {
		concurrency = len(targets)
	}

	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for job := range jobs {
			results[job.index] = resolveOne(ctx, opts, job.target)
		}
	}

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go worker()
	}

sendLoop:
	for i, target := range targets {
		select {
		case <-ctx.Done():
			for j := i; j < len(targets); j++ {
				results[j] = output.Result{Target: targets[j], Error: ctx.Err().Error()}
			}
			break sendLoop
		case jobs <- resolveJob{index: i, target: target}:
		}
	}
	close(jobs)
	wg.Wait()

	return results
}

func resolveOne(ctx context.Context, opts handlers.RelayOptions, raw string) output.Result {
	result := output.Result{Target: raw}
	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	target, err := opts.Policy.ParseTarget(raw)
	if err == nil {
		err = opts.Policy.Check(target)
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}

	decision, err := opts.Resolver.Resolve(ctx, target)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Decision = &decision
	return result
}
