package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pmorozova/litsort/internal/llm"
	"github.com/pmorozova/litsort/internal/model"
	"github.com/pmorozova/litsort/internal/pipeline"
)

var (
	chunkSize      int
	maxRetries     int
	speciesEnabled bool
	fixPath        string
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract structured records from a source text file",
	Long: `Extract splits the input text into batches, sends each batch to the
configured LLM provider, and merges the returned records into the corpus.

Batches are processed strictly in order. Transient service errors are
retried with exponential backoff; rate limiting and overload back off and
continue, while authentication and quota failures stop the run with the
corpus preserved. A malformed service response pauses the run for manual
correction of the offending batch.

Records accumulate across invocations: running extract again with a new
input file appends to the existing corpus.

Example:
  litsort extract citations.txt --topic "coral reef decline"
  litsort extract more-citations.txt --state corpus.json
  litsort extract citations.txt --llm-provider anthropic --species`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&topicFlag, "topic", "", "research topic guiding extraction")
	extractCmd.Flags().StringVar(&statePath, "state", "", "corpus state file (default: litsort-state.json)")
	extractCmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "max batch size in bytes")
	extractCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retry ceiling for transient service errors")
	extractCmd.Flags().BoolVar(&speciesEnabled, "species", false, "extract taxonomic species names")
	extractCmd.Flags().StringVar(&fixPath, "fix-file", "litsort-fix.txt", "scratch file for manual batch correction")

	extractCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	extractCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	extractCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the response cache")
}

func runExtract(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return fmt.Errorf("input file is empty: %s", args[0])
	}

	cfg := buildConfig()
	if chunkSize > 0 {
		cfg.Pipeline.ChunkSize = chunkSize
	}
	if maxRetries > 0 {
		cfg.Pipeline.MaxRetries = maxRetries
	}
	if speciesEnabled {
		cfg.Pipeline.SpeciesEnabled = true
	}
	if err := resolveCredentials(cfg); err != nil {
		return err
	}

	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	corpus, err := loadCorpus(cfg)
	if err != nil {
		return err
	}
	if corpus.Len() > 0 && topicFlag != "" && corpus.Topic != topicFlag {
		return fmt.Errorf("state file %s holds a corpus for topic %q; use a different --state file for topic %q",
			cfg.Output.StatePath, corpus.Topic, topicFlag)
	}

	p := pipeline.New(svc, corpus, cfg.Pipeline, os.Stderr)
	if err := p.LoadText(string(raw)); err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Provider: %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
		fmt.Fprintf(os.Stderr, "Topic: %s\n", corpus.Topic)
		fmt.Fprintf(os.Stderr, "Batches: %d\n\n", len(p.Batches()))
	}

	// First interrupt requests a cooperative stop; the in-flight batch
	// finishes and its records are kept
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintf(os.Stderr, "\nStopping after the current batch...\n")
		p.Stop()
	}()

	ctx := context.Background()
	res, runErr := p.Run(ctx)

	// A parse failure suspends rather than fails: hand the batch text to the
	// user for correction and re-enter at the same index
	for runErr == nil && res != nil && res.State == pipeline.StateAwaitingFix {
		res, runErr = promptFix(ctx, p)
	}

	// The corpus keeps everything merged before the failure, so save first
	if saveErr := saveCorpus(cfg, corpus); saveErr != nil {
		if runErr != nil {
			return fmt.Errorf("%v (additionally: %v)", runErr, saveErr)
		}
		return saveErr
	}

	if runErr != nil {
		if llm.Classify(runErr) == llm.KindQuota {
			fmt.Fprintf(os.Stderr, "\nDaily quota exhausted. Progress is saved in %s;\n", cfg.Output.StatePath)
			fmt.Fprintf(os.Stderr, "run the same command again when the quota resets to continue.\n")
		}
		return fmt.Errorf("extraction failed: %w", runErr)
	}

	printRunSummary(res, corpus, cfg)
	return nil
}

// promptFix writes the paused batch text to the fix file, waits for the user
// to edit it, and resumes the pipeline with the corrected text
func promptFix(ctx context.Context, p *pipeline.Pipeline) (*pipeline.RunResult, error) {
	idx, text, ok := p.AwaitingFix()
	if !ok {
		return nil, fmt.Errorf("pipeline is not awaiting a fix")
	}

	if err := os.WriteFile(fixPath, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("write fix file: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\nBatch %d produced a response that could not be parsed.\n", idx)
	fmt.Fprintf(os.Stderr, "Its source text has been written to %s.\n", fixPath)
	fmt.Fprintf(os.Stderr, "Edit the file (e.g. remove malformed entries), then press Enter to retry,\n")
	fmt.Fprintf(os.Stderr, "or type 'skip' to abandon this run: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if strings.TrimSpace(line) == "skip" {
		return nil, fmt.Errorf("run abandoned at batch %d", idx)
	}

	edited, err := os.ReadFile(fixPath)
	if err != nil {
		return nil, fmt.Errorf("read fix file: %w", err)
	}
	return p.ResumeWithFix(ctx, string(edited))
}

func printRunSummary(res *pipeline.RunResult, corpus *model.Corpus, cfg *model.Config) {
	fmt.Fprintf(os.Stderr, "\n")
	switch res.State {
	case pipeline.StateDone:
		fmt.Fprintf(os.Stderr, "✓ Extraction complete\n")
	case pipeline.StateStopped:
		fmt.Fprintf(os.Stderr, "✓ Stopped cleanly (%d batches done)\n", res.BatchesDone)
	}
	fmt.Fprintf(os.Stderr, "✓ Merged %d records this run (%d total)\n", res.RecordsMerged, corpus.Len())
	if res.Retries > 0 {
		fmt.Fprintf(os.Stderr, "✓ Recovered from %d transient service errors\n", res.Retries)
	}
	if res.AuditFixes > 0 {
		fmt.Fprintf(os.Stderr, "✓ Taxonomy audit reassigned %d records\n", res.AuditFixes)
	}

	tax := corpus.Taxonomy(0)
	fmt.Fprintf(os.Stderr, "✓ Taxonomy: %d categories, %d themes\n", len(tax.Categories), len(tax.Pairs()))
	fmt.Fprintf(os.Stderr, "\nState: %s\n", cfg.Output.StatePath)
	fmt.Fprintf(os.Stderr, "Next: litsort consolidate --state %s\n", cfg.Output.StatePath)
}
