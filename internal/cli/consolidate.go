package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pmorozova/litsort/internal/consolidate"
	"github.com/pmorozova/litsort/internal/llm"
	"github.com/pmorozova/litsort/internal/model"
)

// consolidateCmd represents the consolidate command
var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Interactively review taxonomy consolidation proposals",
	Long: `Consolidate asks the LLM provider to review the current taxonomy and
propose structural improvements: merging near-duplicate themes, moving
misfiled themes between categories, merging or renaming categories.

Nothing changes without your approval. Each proposal is applied, rejected,
verified against sample titles, or reversed individually. Rejected
proposals are remembered and never suggested again; locked categories and
themes are never touched.

Commands inside the review loop:
  list                   show pending proposals
  accept <id>            apply a proposal to the corpus
  reject <id>            discard a proposal permanently
  verify <id>            check a move proposal against sample titles
  reverse <id>           flip a proposal's direction
  lock <category>        protect a category from future proposals
  lock <category>/<theme>  protect a single theme
  regen                  ask for a fresh round of proposals
  done                   save and exit

Example:
  litsort consolidate --state corpus.json`,
	Args: cobra.NoArgs,
	RunE: runConsolidate,
}

func init() {
	rootCmd.AddCommand(consolidateCmd)

	consolidateCmd.Flags().StringVar(&statePath, "state", "", "corpus state file (default: litsort-state.json)")
	consolidateCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	consolidateCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	consolidateCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the response cache")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
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

	engine := consolidate.NewEngine(svc, corpus, os.Stderr)
	engine.SampleTitles = cfg.Pipeline.SampleTitles
	engine.VerifyTitles = cfg.Pipeline.VerifyTitles

	ctx := context.Background()
	status, err := engine.Generate(ctx)
	if err != nil {
		return fmt.Errorf("generate proposals: %w", err)
	}
	if status == llm.StatusNoChanges || len(engine.Pending()) == 0 {
		fmt.Fprintf(os.Stderr, "✓ No consolidation suggestions; the taxonomy looks settled\n")
		return saveCorpus(cfg, corpus)
	}

	printProposals(engine.Pending())

	reader := bufio.NewScanner(os.Stdin)
	fmt.Fprintf(os.Stderr, "\n")
	for {
		fmt.Fprintf(os.Stderr, "consolidate> ")
		if !reader.Scan() {
			break
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		verb := fields[0]

		switch verb {
		case "done", "quit", "exit":
			return saveCorpus(cfg, corpus)

		case "list":
			printProposals(engine.Pending())

		case "regen":
			status, err := engine.Generate(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "✗ %v\n", err)
				continue
			}
			if status == llm.StatusNoChanges {
				fmt.Fprintf(os.Stderr, "✓ No further suggestions\n")
				continue
			}
			printProposals(engine.Pending())

		case "accept", "reject", "verify", "reverse":
			if len(fields) != 2 {
				fmt.Fprintf(os.Stderr, "Usage: %s <id>\n", verb)
				continue
			}
			id, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Not a proposal id: %s\n", fields[1])
				continue
			}
			applyVerb(ctx, engine, verb, id)

		case "lock":
			if len(fields) < 2 {
				fmt.Fprintf(os.Stderr, "Usage: lock <category> or lock <category>/<theme>\n")
				continue
			}
			applyLock(corpus, strings.TrimSpace(strings.TrimPrefix(line, "lock")))

		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s (try list, accept, reject, verify, reverse, lock, regen, done)\n", verb)
		}
	}

	// EOF on stdin ends the session like "done"
	return saveCorpus(cfg, corpus)
}

func applyVerb(ctx context.Context, engine *consolidate.Engine, verb string, id int) {
	switch verb {
	case "accept":
		changed, err := engine.Accept(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "✓ Applied proposal %d (%d records updated)\n", id, changed)

	case "reject":
		if err := engine.Reject(id); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "✓ Rejected proposal %d; it will not be suggested again\n", id)

	case "verify":
		valid, reason, err := engine.Verify(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			return
		}
		if valid {
			fmt.Fprintf(os.Stderr, "✓ Proposal %d holds up against sample titles: %s\n", id, reason)
		} else {
			fmt.Fprintf(os.Stderr, "✗ Proposal %d discarded after verification: %s\n", id, reason)
		}

	case "reverse":
		p, err := engine.Reverse(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "✓ Reversed proposal %d:\n  %s\n", id, describeProposal(*p))
	}
}

func applyLock(corpus *model.Corpus, target string) {
	if cat, theme, found := strings.Cut(target, "/"); found {
		corpus.Locks.LockTheme(strings.TrimSpace(cat), strings.TrimSpace(theme))
		fmt.Fprintf(os.Stderr, "✓ Locked theme %s in %s\n", strings.TrimSpace(theme), strings.TrimSpace(cat))
		return
	}
	corpus.Locks.LockCategory(target)
	fmt.Fprintf(os.Stderr, "✓ Locked category %s\n", target)
}

func printProposals(pending []model.Proposal) {
	if len(pending) == 0 {
		fmt.Fprintf(os.Stderr, "No pending proposals\n")
		return
	}
	fmt.Fprintf(os.Stderr, "\nPending proposals:\n")
	for _, p := range pending {
		mark := " "
		if p.Verified {
			mark = "✓"
		}
		fmt.Fprintf(os.Stderr, "  [%d]%s %s\n", p.ID, mark, describeProposal(p))
		if p.Justification != "" {
			fmt.Fprintf(os.Stderr, "       %s\n", p.Justification)
		}
	}
}

func describeProposal(p model.Proposal) string {
	switch p.Kind {
	case model.KindMergeThemes:
		return fmt.Sprintf("merge themes {%s} in %s into %q",
			strings.Join(p.Themes, ", "), p.Category, p.NewName)
	case model.KindMoveTheme:
		return fmt.Sprintf("move theme %q from %s to %s", p.Theme, p.Category, p.TargetCategory)
	case model.KindMergeCategories:
		return fmt.Sprintf("merge category %s into %s", p.Category, p.TargetCategory)
	case model.KindRenameCategory:
		return fmt.Sprintf("rename category %s to %q", p.Category, p.NewName)
	}
	return string(p.Kind)
}
