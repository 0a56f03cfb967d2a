package llm

import (
	"fmt"
	"strings"
)

const extractSystem = `You are a research assistant that converts raw bibliographic text into structured JSON records. You respond with JSON only, no prose, no markdown fences.`

func extractPrompt(req ExtractRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Topic context: %s

Convert the citation/abstract text below into structured findings. Each finding links one driver variable to one response variable. A single paper yields multiple entries when it reports multiple independent driver-response findings.

Respond with JSON of this exact shape:
{"entries": [{"title": "...", "authors": "...", "year": "...", "journal": "...", "finding": "one-sentence condensed finding", "category": "...", "theme": "...", "driver": "...", "response": "...", "effect": "Positive|Negative|Neutral|Complex|Methodological|Unclear", "location": "...", "keywords": ["..."], "citation": "Author et al. (Year)"`, req.Topic)

	if req.Species {
		b.WriteString(`, "species": "Latin binomial if identifiable"`)
	}
	b.WriteString("}]}\n\n")

	if req.TaxonomyHint != "" {
		b.WriteString("Existing categories and themes - reuse these names whenever a finding fits, instead of inventing near-duplicates:\n")
		b.WriteString(req.TaxonomyHint)
		b.WriteString("\n")
	}

	b.WriteString("Text to process:\n")
	b.WriteString(req.Text)

	return b.String()
}

const consolidateSystem = `You are a taxonomy editor reviewing a two-level classification (category -> theme) of research findings. You respond with JSON only.`

func consolidatePrompt(req ConsolidateRequest) string {
	var b strings.Builder

	b.WriteString(`Analyze the taxonomy below and propose structural improvements: merging redundant themes within a category, moving misplaced themes between categories, merging overlapping categories, and renaming unclear categories.

Respond with JSON of this exact shape (lists may be empty):
{"status": "suggestions_made" or "no_changes",
 "theme_merges": [{"category": "...", "themes": ["...", "..."], "new_name": "...", "justification": "..."}],
 "theme_moves": [{"theme": "...", "from_category": "...", "to_category": "...", "justification": "..."}],
 "category_merges": [{"source": "...", "target": "...", "justification": "..."}],
 "category_renames": [{"category": "...", "new_name": "...", "justification": "..."}]}

Current taxonomy with record counts and sample titles:
`)

	for _, c := range req.Taxonomy.Categories {
		fmt.Fprintf(&b, "Category: %s\n", c.Name)
		for _, t := range c.Themes {
			fmt.Fprintf(&b, "  - %s (%d records)", t.Name, t.Count)
			if len(t.Samples) > 0 {
				fmt.Fprintf(&b, " e.g. %s", strings.Join(t.Samples, " / "))
			}
			b.WriteString("\n")
		}
	}

	if len(req.Locks.Categories) > 0 || len(req.Locks.Themes) > 0 {
		b.WriteString("\nLocked entries - never propose changes that use these as source, member, or rename subject:\n")
		for _, c := range req.Locks.Categories {
			fmt.Fprintf(&b, "- category: %s\n", c)
		}
		for _, t := range req.Locks.Themes {
			fmt.Fprintf(&b, "- theme: %s / %s\n", t.Category, t.Theme)
		}
	}

	if len(req.Rejected) > 0 {
		b.WriteString("\nPreviously rejected proposals - do not suggest these again:\n")
		for _, sig := range req.Rejected {
			fmt.Fprintf(&b, "- %s\n", sig)
		}
	}

	return b.String()
}

const auditSystem = `You audit a two-level research taxonomy for duplicates and redundancies. You respond with JSON only.`

func auditPrompt(pairs []string) string {
	var b strings.Builder

	b.WriteString(`Below is the full list of (category ||| theme) pairs. Identify duplicate sub-themes spread across categories and hierarchical redundancies between categories, and return fixes.

Respond with JSON of this exact shape:
{"fixes": [{"original_category": "...", "original_theme": "...", "new_category": "...", "new_theme": "...", "reason": "..."}]}

Pairs:
`)
	for _, p := range pairs {
		b.WriteString(p)
		b.WriteString("\n")
	}
	return b.String()
}

const normalizeSystem = `You canonicalize free-text metadata in research findings. You respond with JSON only.`

func normalizePrompt(entries []TermEntry) string {
	var b strings.Builder

	b.WriteString(`For each record below, map the driver, response, location and species values to canonical forms (consistent spelling, singular, no abbreviations) and assign a coarser group label for driver and response. Omit records that are already canonical.

Respond with JSON of this exact shape:
{"mappings": [{"id": "...", "driver": "...", "driver_group": "...", "response": "...", "response_group": "...", "location": "...", "species": "..."}]}

Records:
`)
	for _, e := range entries {
		fmt.Fprintf(&b, "id=%s | driver=%s | response=%s | location=%s", e.ID, e.Driver, e.Response, e.Location)
		if e.Species != "" {
			fmt.Fprintf(&b, " | species=%s", e.Species)
		}
		b.WriteString("\n")
	}
	return b.String()
}

const verifySystem = `You verify proposed taxonomy changes against record evidence. You respond with JSON only.`

func verifyPrompt(theme, from, to string, titles []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `A proposal moves the theme %q from category %q to category %q. Judge from the record titles below whether the move is appropriate.

Respond with JSON: {"valid": true or false, "reason": "..."}

Titles under the theme:
`, theme, from, to)
	for _, t := range titles {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	return b.String()
}

const justifySystem = `You explain taxonomy restructuring decisions. You respond with JSON only.`

func justifyPrompt(source, target string) string {
	return fmt.Sprintf(`Give a one-sentence justification for merging the category %q entirely into the category %q.

Respond with JSON: {"justification": "..."}`, source, target)
}
