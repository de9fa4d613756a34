package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coresight/coresight/internal/git"
	"github.com/coresight/coresight/internal/pipeline"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

var (
	commitMessage  string
	commitAuthor   string
	commitName     string
	commitDiff     string
	commitRepo     string
	commitBranch   string
	commitFiles    int
	commitAdded    int
	commitDeleted  int
	commitModified int
	commitLimit    int
	ingestSince    string
	ingestMax      int
	ingestRev      string
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Process and inspect commits",
}

var commitProcessCmd = &cobra.Command{
	Use:   "process <hash>",
	Short: "Analyze a commit, link it to a task and evolve the author's profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		commit := &types.Commit{
			Hash:          args[0],
			Message:       commitMessage,
			DiffSummary:   commitDiff,
			Repository:    commitRepo,
			Branch:        commitBranch,
			AuthorEmail:   commitAuthor,
			AuthorName:    commitName,
			FilesChanged:  commitFiles,
			LinesAdded:    commitAdded,
			LinesDeleted:  commitDeleted,
			LinesModified: commitModified,
			Timestamp:     time.Now().UTC(),
		}
		if err := commit.Validate(); err != nil {
			fatalf("invalid commit: %v", err)
		}

		a := mustApp(cmd)
		res, err := a.Profiles.ProcessCommit(cmd.Context(), commit)
		if err != nil {
			fatalf("%v", err)
		}
		printCommitResult(res)
	},
}

var commitListCmd = &cobra.Command{
	Use:   "list [user-id]",
	Short: "List processed commits, newest first",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		filter := storage.CommitFilter{Limit: commitLimit}
		if len(args) == 1 {
			filter.UserID = args[0]
		}
		a := mustApp(cmd)
		commits, err := a.Store.ListCommits(cmd.Context(), filter)
		if err != nil {
			fatalf("%v", err)
		}
		if len(commits) == 0 {
			fmt.Println("No commits recorded")
			return
		}
		for _, c := range commits {
			task := gray("untracked")
			if c.LinkedTaskID != "" {
				task = cyan(c.LinkedTaskID)
			}
			fmt.Printf("%s  %s  %-10s %-50s %s\n",
				gray(c.Timestamp.Format("2006-01-02")), shortHash(c.Hash), c.Impact, truncate(c.Summary, 50), task)
		}
	},
}

var commitIngestCmd = &cobra.Command{
	Use:   "ingest <repo-path>",
	Short: "Process commits from a local git repository",
	Long: `Read non-merge commits from a local repository, oldest first, and process
each one. Commits already recorded are skipped, so ingest can be re-run
after new work lands.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		opts := git.LogOptions{Rev: ingestRev, MaxCount: ingestMax}
		if ingestSince != "" {
			since, err := time.Parse("2006-01-02", ingestSince)
			if err != nil {
				fatalf("invalid --since (want YYYY-MM-DD): %v", err)
			}
			opts.Since = since
		}

		g, err := git.NewGit(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		commits, err := g.Log(ctx, args[0], opts)
		if err != nil {
			fatalf("%v", err)
		}

		a := mustApp(cmd)
		var handles []*pipeline.Handle
		skipped := 0
		for _, c := range commits {
			c.ID = c.Hash
			existing, err := a.Store.GetCommit(ctx, c.ID)
			if err != nil {
				fatalf("%v", err)
			}
			if existing != nil {
				skipped++
				continue
			}
			handles = append(handles, a.Dispatcher.Submit(ctx, pipeline.Event{Kind: pipeline.KindCommit, Commit: c}))
		}

		updated, failed := 0, 0
		for _, h := range handles {
			res, err := h.Wait()
			if err != nil {
				failed++
				fmt.Printf("%s %v\n", red("✗"), err)
				continue
			}
			if res.Commit.ProfileUpdated {
				updated++
			}
		}
		fmt.Printf("%s Processed %d commit(s), %d skipped, %d failed, %d profile update(s)\n",
			green("✓"), len(handles)-failed, skipped, failed, updated)
		printGatewayStats(a)
	},
}

func init() {
	commitIngestCmd.Flags().StringVar(&ingestSince, "since", "", "Only commits after this date (YYYY-MM-DD)")
	commitIngestCmd.Flags().IntVar(&ingestMax, "max", 0, "Process at most the newest N commits")
	commitIngestCmd.Flags().StringVar(&ingestRev, "rev", "", "Revision to walk from (default HEAD)")

	f := commitProcessCmd.Flags()
	f.StringVarP(&commitMessage, "message", "m", "", "Commit message")
	f.StringVar(&commitAuthor, "author", "", "Author email")
	f.StringVar(&commitName, "author-name", "", "Author name")
	f.StringVar(&commitDiff, "diff", "", "Diff summary")
	f.StringVar(&commitRepo, "repo", "", "Repository")
	f.StringVar(&commitBranch, "branch", "", "Branch")
	f.IntVar(&commitFiles, "files", 0, "Files changed")
	f.IntVar(&commitAdded, "added", 0, "Lines added")
	f.IntVar(&commitDeleted, "deleted", 0, "Lines deleted")
	f.IntVar(&commitModified, "modified", 0, "Lines modified")

	commitListCmd.Flags().IntVar(&commitLimit, "limit", 20, "Maximum commits to show")

	commitCmd.AddCommand(commitProcessCmd, commitIngestCmd, commitListCmd)
	rootCmd.AddCommand(commitCmd)
}
