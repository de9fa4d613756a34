package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

var (
	issueDescription string
	issuePriority    string
	issueSkills      []string
	issueProject     string
	issueSource      string
	issueExternalID  string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Resolve and inspect incoming issues",
}

var issueResolveCmd = &cobra.Command{
	Use:   "resolve <title>",
	Short: "Merge an issue into a duplicate task or create a new task",
	Long: `Resolve an incoming issue. Similar open tasks are searched by embedding;
when the reasoning model confirms a duplicate the issue is folded into the
existing task, otherwise a new task is created and handed to skill matching.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		issue := &types.Issue{
			Title:          strings.Join(args, " "),
			Description:    issueDescription,
			Priority:       types.Priority(issuePriority),
			RequiredSkills: issueSkills,
			ProjectID:      issueProject,
			Source:         issueSource,
			ExternalID:     issueExternalID,
		}
		if err := issue.Validate(); err != nil {
			fatalf("invalid issue: %v", err)
		}

		a := mustApp(cmd)
		out, err := a.Resolver.Resolve(cmd.Context(), issue)
		if err != nil {
			fatalf("%v", err)
		}
		printOutcome(out)
	},
}

var issueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded issues and how they were resolved",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		issues, err := a.Store.ListIssues(cmd.Context(), storage.IssueFilter{})
		if err != nil {
			fatalf("%v", err)
		}
		if len(issues) == 0 {
			fmt.Println("No issues recorded")
			return
		}
		for _, is := range issues {
			target := is.TaskID
			if is.Resolution == types.ResolutionMerged {
				target = is.ParentTaskID
			}
			fmt.Printf("%s  %-8s %-40s → %s\n", gray(is.ID), is.Resolution, truncate(is.Title, 40), cyan(target))
		}
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	issueResolveCmd.Flags().StringVarP(&issueDescription, "description", "d", "", "Issue description")
	issueResolveCmd.Flags().StringVarP(&issuePriority, "priority", "p", string(types.PriorityMedium), "Priority: low, medium, high, critical")
	issueResolveCmd.Flags().StringSliceVar(&issueSkills, "skills", nil, "Required skills (comma separated); extracted when omitted")
	issueResolveCmd.Flags().StringVar(&issueProject, "project", "", "Project ID")
	issueResolveCmd.Flags().StringVar(&issueSource, "source", "cli", "Issue source")
	issueResolveCmd.Flags().StringVar(&issueExternalID, "external-id", "", "ID in the source tracker")

	issueCmd.AddCommand(issueResolveCmd, issueListCmd)
	rootCmd.AddCommand(issueCmd)
}
