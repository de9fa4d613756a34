package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/coresight/coresight/internal/ai"
	"github.com/coresight/coresight/internal/dedup"
	"github.com/coresight/coresight/internal/matching"
	"github.com/coresight/coresight/internal/profile"
	"github.com/coresight/coresight/internal/types"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func fallbackTag(fallback bool) string {
	if fallback {
		return yellow(" (default, reasoning unavailable)")
	}
	return ""
}

func printOutcome(out *dedup.Outcome) {
	switch {
	case out.AlreadyResolved:
		fmt.Printf("%s Issue %s was already resolved (%s)\n", gray("→"), out.Issue.ID, out.Resolution)
	case out.Resolution == types.ResolutionMerged:
		fmt.Printf("%s Merged issue %s into task %s\n", green("✓"), out.Issue.ID, cyan(out.Task.ID))
	default:
		fmt.Printf("%s Created task %s from issue %s\n", green("✓"), cyan(out.Task.ID), out.Issue.ID)
	}
	if out.Task != nil {
		fmt.Printf("  Task:     %s [%s]\n", out.Task.Title, out.Task.Priority)
		fmt.Printf("  Skills:   %s\n", types.SkillText(out.Task.RequiredSkills))
	}
	if out.Decision != nil {
		fmt.Printf("  Verdict:  duplicate=%t confidence=%.2f%s\n",
			out.Decision.IsDuplicate, out.Decision.Confidence, fallbackTag(out.DecisionFallback))
		if out.Decision.Reasoning != "" {
			fmt.Printf("  Reason:   %s\n", gray(out.Decision.Reasoning))
		}
	}
	if len(out.Candidates) > 0 {
		fmt.Printf("  Similar:  ")
		parts := make([]string, 0, len(out.Candidates))
		for _, c := range out.Candidates {
			parts = append(parts, fmt.Sprintf("%s (%.2f)", c.ID, c.Score))
		}
		fmt.Println(strings.Join(parts, ", "))
	}
	if len(out.Trace) > 0 {
		stages := make([]string, len(out.Trace))
		for i, s := range out.Trace {
			stages[i] = string(s)
		}
		fmt.Printf("  Trace:    %s\n", gray(strings.Join(stages, " → ")))
	}
	if out.Assignment != nil {
		printAssignment(out.Assignment)
	}
}

func printAssignment(res *matching.Result) {
	switch {
	case res.Assigned:
		fmt.Printf("%s Assigned task %s to %s\n", green("✓"), res.Task.ID, cyan(res.Assignee.Name))
	case res.RequiresJobPosting:
		fmt.Printf("%s No one can take task %s: %v\n", red("✗"), res.Task.ID, res.Reason)
		fmt.Printf("  %s\n", yellow("Flagged for a job posting"))
	default:
		fmt.Printf("%s Task %s not assigned: %v\n", yellow("⚠"), res.Task.ID, res.Reason)
	}
	for i, c := range res.Candidates {
		if i == 5 {
			fmt.Printf("  %s\n", gray(fmt.Sprintf("... %d more", len(res.Candidates)-i)))
			break
		}
		low := ""
		if c.LowConfidence {
			low = yellow(" low-confidence")
		}
		fmt.Printf("  %d. %-20s score=%.3f skill=%.3f profile=%.3f open=%d%s\n",
			i+1, c.User.Name, c.Score, c.SkillScore, c.ProfileScore, c.OpenAssignments, low)
	}
	for _, at := range res.Attempts {
		verdict := red("rejected")
		if at.Validation.CanDo {
			verdict = green("accepted")
		}
		fmt.Printf("  validate %s: %s confidence=%.2f%s\n",
			at.UserID, verdict, at.Validation.Confidence, fallbackTag(at.Fallback))
	}
}

func printCommitResult(res *profile.Result) {
	c := res.Commit
	fmt.Printf("%s Processed commit %s\n", green("✓"), cyan(shortHash(c.Hash)))
	fmt.Printf("  Summary:  %s%s\n", c.Summary, fallbackTag(res.AnalysisFallback))
	fmt.Printf("  Impact:   %s\n", c.Impact)
	if len(c.ExtractedSkills) > 0 {
		fmt.Printf("  Skills:   %s\n", types.SkillText(c.ExtractedSkills))
	}
	if c.LinkedTaskID != "" {
		fmt.Printf("  Task:     %s (%.2f)\n", c.LinkedTaskID, res.LinkScore)
	} else {
		fmt.Printf("  Task:     %s\n", gray("untracked"))
	}
	switch {
	case res.User == nil:
		fmt.Printf("  Author:   %s\n", gray(c.AuthorEmail+" (unknown)"))
	case res.ProfileUpdated:
		fmt.Printf("  Author:   %s %s\n", res.User.Name, green("profile updated"))
	case res.Conflict:
		fmt.Printf("  Author:   %s %s\n", res.User.Name, yellow("profile update dropped, concurrent change"))
	default:
		fmt.Printf("  Author:   %s\n", res.User.Name)
	}
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// printGatewayStats summarizes provider traffic for a batch run.
func printGatewayStats(a *App) {
	es := a.Embedder.Stats()
	rs := a.Reasoner.Stats()
	fmt.Printf("%s\n", gray(fmt.Sprintf("  embedding: %d provider call(s), %d cache hit(s), %d fallback(s)",
		es.ProviderCalls, es.CacheHits, es.Fallbacks)))
	line := fmt.Sprintf("  reasoning: %d call(s), %d retried, %d fallback(s)", rs.Calls, rs.Retries, rs.Fallbacks)
	if a.Completer != nil {
		state := a.Completer.CircuitState()
		line += ", circuit " + state.String()
		if state != ai.CircuitClosed {
			fmt.Printf("%s\n", yellow(line))
			return
		}
	}
	fmt.Printf("%s\n", gray(line))
}
