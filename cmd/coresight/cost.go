package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/coresight/coresight/internal/cost"
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Show reasoning token budget and usage by operation",
	Long:  `Display the reasoning budget status, spend in the current window and all-time usage per operation.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		costCfg := a.Config.Cost

		if !costCfg.Enabled {
			fmt.Println("Cost budgeting is disabled")
			fmt.Println("Set CORESIGHT_COST_ENABLED=true to enable cost tracking")
			return
		}

		stats := a.Costs.GetStats()

		header := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", header("=== Reasoning Budget Status ==="))

		statusColor := color.New(color.FgGreen)
		statusIcon := "✓"
		if stats.Status == cost.BudgetWarning {
			statusColor = color.New(color.FgYellow)
			statusIcon = "⚠"
		} else if stats.Status == cost.BudgetExceeded {
			statusColor = color.New(color.FgRed, color.Bold)
			statusIcon = "✗"
		}
		fmt.Printf("%s Budget Status: %s\n", statusIcon, statusColor.Sprint(stats.Status.String()))
		if stats.Status == cost.BudgetExceeded {
			fmt.Printf("  %s\n", gray("Reasoning calls take their defaults until the window resets"))
		}
		fmt.Println()

		fmt.Printf("%s\n", yellow("Window Budget:"))
		if costCfg.MaxTokensPerHour > 0 {
			pct := float64(stats.HourlyTokensUsed) / float64(costCfg.MaxTokensPerHour) * 100
			fmt.Printf("  Tokens:  %s / %d (%.1f%%)\n", formatTokens(stats.HourlyTokensUsed), costCfg.MaxTokensPerHour, pct)
			fmt.Printf("           %s\n", renderProgressBar(pct, 40))
		} else {
			fmt.Printf("  Tokens:  %s (unlimited)\n", formatTokens(stats.HourlyTokensUsed))
		}
		if costCfg.MaxCostPerHour > 0 {
			pct := stats.HourlyCostUsed / costCfg.MaxCostPerHour * 100
			fmt.Printf("  Cost:    $%.4f / $%.2f (%.1f%%)\n", stats.HourlyCostUsed, costCfg.MaxCostPerHour, pct)
			fmt.Printf("           %s\n", renderProgressBar(pct, 40))
		} else {
			fmt.Printf("  Cost:    $%.4f (unlimited)\n", stats.HourlyCostUsed)
		}
		fmt.Printf("  Window:  %s → %s\n",
			stats.WindowStartTime.Format("15:04:05"),
			stats.WindowStartTime.Add(costCfg.BudgetResetInterval).Format("15:04:05"))
		fmt.Println()

		fmt.Printf("%s\n", yellow("All-Time Usage:"))
		fmt.Printf("  Tokens:  %s\n", formatTokens(stats.TotalTokensUsed))
		fmt.Printf("  Cost:    $%.2f\n", stats.TotalCostUsed)
		fmt.Println()

		if names := stats.OperationNames(); len(names) > 0 {
			fmt.Printf("%s\n", yellow("By Operation:"))
			for _, name := range names {
				u := stats.Operations[name]
				fmt.Printf("  %-20s %6d calls  %10s tokens  $%.4f\n", name, u.Calls, formatTokens(u.Tokens()), u.Cost)
			}
			fmt.Println()
		}

		fmt.Printf("%s\n", yellow("Pricing (per 1M tokens):"))
		fmt.Printf("  Input:   $%.2f\n", costCfg.InputTokenCost)
		fmt.Printf("  Output:  $%.2f\n", costCfg.OutputTokenCost)
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(costCmd)
}

// formatTokens formats a token count with a K or M suffix
func formatTokens(tokens int64) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	} else if tokens < 1_000_000 {
		return fmt.Sprintf("%.1fK", float64(tokens)/1000)
	}
	return fmt.Sprintf("%.2fM", float64(tokens)/1_000_000)
}

// renderProgressBar renders a text-based progress bar
func renderProgressBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100.0 * float64(width))

	barColor := color.New(color.FgGreen)
	if percent >= 100 {
		barColor = color.New(color.FgRed, color.Bold)
	} else if percent >= 80 {
		barColor = color.New(color.FgYellow)
	}

	var b strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			b.WriteString(barColor.Sprint("█"))
		} else {
			b.WriteString(color.New(color.FgHiBlack).Sprint("░"))
		}
	}
	return "[" + b.String() + "]"
}
