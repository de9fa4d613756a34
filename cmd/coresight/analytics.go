package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/coresight/coresight/internal/analytics"
)

var (
	analyticsJSON bool
	focusDays     int
	focusThresh   int
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Impact, cost and focus reports",
}

var impactCmd = &cobra.Command{
	Use:   "impact <user-id>",
	Short: "Classify a developer's commits as new work, refactoring or cleanup",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		report, err := a.Analytics.Impact(cmd.Context(), args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if analyticsJSON {
			printJSON(report)
			return
		}

		fmt.Printf("\n%s\n\n", cyan("=== Code Impact: "+report.UserID+" ==="))
		fmt.Printf("  Label:          %s\n", bold(string(report.Label)))
		fmt.Printf("  Commits:        %d\n", report.TotalCommits)
		fmt.Printf("  Lines:          +%d -%d ~%d\n",
			report.TotalLinesAdded, report.TotalLinesDeleted, report.TotalLinesModified)
		fmt.Printf("  Refactor ratio: %.2f\n\n", report.OverallRefactorRatio)

		for _, c := range []analytics.Category{
			analytics.CategoryNewFeature, analytics.CategoryRefactoring, analytics.CategoryCleanup,
		} {
			share := report.Breakdown[c]
			fmt.Printf("  %-12s %3d  %5.1f%%  %s\n", c, share.Count, share.Percentage, renderProgressBar(share.Percentage, 30))
		}

		if len(report.RecentCommits) > 0 {
			fmt.Printf("\n%s\n", yellow("Recent commits:"))
			for _, c := range report.RecentCommits {
				fmt.Printf("  %s  %-12s %.2f  %s\n", shortHash(c.Hash), c.Category, c.RefactorRatio, c.Message)
			}
		}
		fmt.Println()
	},
}

var taskCostCmd = &cobra.Command{
	Use:   "cost <task-id>",
	Short: "Total a task's logged hours at each developer's rate and compare with budget",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		report, err := a.Analytics.TaskCost(cmd.Context(), args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if analyticsJSON {
			printJSON(report)
			return
		}

		fmt.Printf("\n%s\n\n", cyan("=== Task Cost: "+report.TaskTitle+" ==="))
		fmt.Printf("  Status:     %s\n", report.TaskStatus)
		fmt.Printf("  Hours:      %.2f\n", report.TotalHours)
		fmt.Printf("  Cost:       $%.2f\n", report.TotalCost)
		fmt.Printf("  Avg rate:   $%.2f/h\n", report.AverageHourlyRate)
		if report.OpenSessions > 0 {
			fmt.Printf("  %s\n", gray(fmt.Sprintf("%d session(s) still open, not counted", report.OpenSessions)))
		}
		if report.UnknownUserSessions > 0 {
			fmt.Printf("  %s\n", yellow(fmt.Sprintf("%d session(s) by unknown users skipped", report.UnknownUserSessions)))
		}

		if len(report.Users) > 0 {
			fmt.Printf("\n%s\n", yellow("By developer:"))
			for _, u := range report.Users {
				fmt.Printf("  %-20s %6.2fh × $%.2f = $%.2f (%d sessions)\n",
					u.UserName, u.Hours, u.HourlyRate, u.Cost, u.Sessions)
			}
		}

		if b := report.Budget; b != nil {
			statusColor := color.New(color.FgGreen)
			if b.Status == analytics.StatusOverBudget {
				statusColor = color.New(color.FgRed, color.Bold)
			}
			fmt.Printf("\n%s\n", yellow("Budget ("+b.ProjectName+"):"))
			fmt.Printf("  Project budget: $%.2f over %d tasks\n", b.TotalBudget, b.TaskCount)
			fmt.Printf("  Task share:     $%.2f\n", b.ProratedBudget)
			fmt.Printf("  Variance:       $%.2f (%.1f%%) %s\n", b.Variance, b.VariancePct, statusColor.Sprint(b.Status))
		}
		fmt.Println()
	},
}

var focusCmd = &cobra.Command{
	Use:   "focus",
	Short: "Report context switching across the team",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		report, err := a.Analytics.FocusHealth(cmd.Context(), focusDays, focusThresh)
		if err != nil {
			fatalf("%v", err)
		}
		if analyticsJSON {
			printJSON(report)
			return
		}

		fmt.Printf("\n%s\n", cyan(fmt.Sprintf("=== Focus Health: last %d days ===", report.WindowDays)))
		fmt.Printf("%s\n\n", gray(report.Start.Format("2006-01-02")+" → "+report.End.Format("2006-01-02")))

		s := report.Summary
		fmt.Printf("  Users:    %d (high %s, medium %s, low %d)\n",
			s.UsersAnalyzed, red(s.HighRisk), yellow(s.MediumRisk), s.LowRisk)
		fmt.Printf("  Switches: %d total, %.2f per user\n\n", s.TotalSwitches, s.AvgSwitchesPerUser)

		if len(report.Alert.UsersFlagged) > 0 {
			fmt.Printf("%s %s\n\n", red("⚠"), report.Alert.Message)
		} else {
			fmt.Printf("%s %s\n\n", green("✓"), report.Alert.Message)
		}

		for _, u := range report.Users {
			risk := green(string(u.Risk))
			switch u.Risk {
			case analytics.RiskHigh:
				risk = red(string(u.Risk))
			case analytics.RiskMedium:
				risk = yellow(string(u.Risk))
			}
			fmt.Printf("  %-20s %-8s avg=%.2f max=%d high-days=%d/%d\n",
				u.UserName, risk, u.AvgSwitches, u.MaxSwitches, u.HighRiskDays, u.DaysAnalyzed)
		}
		fmt.Println()
	},
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("failed to encode report: %v", err)
	}
}

func init() {
	analyticsCmd.PersistentFlags().BoolVar(&analyticsJSON, "json", false, "Print the report as JSON")
	focusCmd.Flags().IntVar(&focusDays, "days", 0, "Window length in days (default from config)")
	focusCmd.Flags().IntVar(&focusThresh, "threshold", 0, "Average switches per day considered high risk (default from config)")

	analyticsCmd.AddCommand(impactCmd, taskCostCmd, focusCmd)
	rootCmd.AddCommand(analyticsCmd)
}
