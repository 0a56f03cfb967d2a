package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pmorozova/litsort/internal/normalize"
	"github.com/pmorozova/litsort/internal/pipeline"
)

// normalizeCmd represents the normalize command
var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize terminology across all records",
	Long: `Normalize sends every record's driver, response, location, and species
terms to the LLM provider in bulk and applies the returned canonical
mappings in one pass. Variant spellings and synonyms collapse onto one
form; group labels are assigned where missing.

Running normalize twice in a row is a no-op: already-canonical terms map
to themselves.

Example:
  litsort normalize --state corpus.json`,
	Args: cobra.NoArgs,
	RunE: runNormalize,
}

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit the taxonomy for cross-category redundancy",
	Long: `Audit flattens the taxonomy to its distinct (category, theme) pairs and
asks the LLM provider for duplicate themes spread across categories and
hierarchically redundant categories. Returned fixes are applied by exact
pair match.

The same pass runs automatically at the end of a completed extraction;
this command re-runs it on demand after further corpus changes.

Example:
  litsort audit --state corpus.json`,
	Args: cobra.NoArgs,
	RunE: runAuditCmd,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(auditCmd)

	for _, c := range []*cobra.Command{normalizeCmd, auditCmd} {
		c.Flags().StringVar(&statePath, "state", "", "corpus state file (default: litsort-state.json)")
		c.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
		c.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
		c.Flags().BoolVar(&noCache, "no-cache", false, "disable the response cache")
	}
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg := buildConfig()
	if err := resolveCredentials(cfg); err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	corpus, err := requireCorpus(cfg)
	if err != nil {
		return err
	}

	n := normalize.New(svc, corpus, os.Stderr)
	changed, err := n.Run(context.Background())
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Normalized terminology (%d field changes across %d records)\n", changed, corpus.Len())
	return saveCorpus(cfg, corpus)
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	cfg := buildConfig()
	if err := resolveCredentials(cfg); err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	corpus, err := requireCorpus(cfg)
	if err != nil {
		return err
	}

	fixed, err := pipeline.Audit(context.Background(), svc, corpus)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	if fixed == 0 {
		fmt.Fprintf(os.Stderr, "✓ Audit found no cross-category redundancy\n")
	} else {
		fmt.Fprintf(os.Stderr, "✓ Audit reassigned %d records\n", fixed)
	}
	return saveCorpus(cfg, corpus)
}
