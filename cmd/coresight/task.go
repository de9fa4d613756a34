package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

var (
	taskListStatus   string
	taskListAll      bool
	taskListAssignee string
	taskListProject  string
	taskListLimit    int
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Assign and inspect tasks",
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign <task-id>",
	Short: "Rank developers for a task and assign the first one validation accepts",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		res, err := a.Matcher.AssignByID(cmd.Context(), args[0])
		if err != nil {
			fatalf("%v", err)
		}
		printAssignment(res)
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks (open only unless --all)",
	Run: func(cmd *cobra.Command, args []string) {
		filter := storage.TaskFilter{
			Status:     types.Status(taskListStatus),
			OpenOnly:   !taskListAll && taskListStatus == "",
			AssigneeID: taskListAssignee,
			ProjectID:  taskListProject,
			Limit:      taskListLimit,
		}
		a := mustApp(cmd)
		tasks, err := a.Store.ListTasks(cmd.Context(), filter)
		if err != nil {
			fatalf("%v", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks found")
			return
		}
		for _, t := range tasks {
			flag := ""
			if t.RequiresJobPosting {
				flag = red(" [needs hire]")
			}
			fmt.Printf("%s  %-11s %-8s %-40s %s%s\n",
				gray(t.ID), t.Status, t.Priority, truncate(t.Title, 40),
				strings.Join(t.AssigneeIDs, ","), flag)
		}
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task and its activity log",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		t, err := a.Store.GetTask(cmd.Context(), args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if t == nil {
			fatalf("task %s not found", args[0])
		}
		fmt.Printf("\n%s %s\n", bold(t.ID), t.Title)
		fmt.Printf("  Status:    %s\n", t.Status)
		fmt.Printf("  Priority:  %s\n", t.Priority)
		fmt.Printf("  Skills:    %s\n", types.SkillText(t.RequiredSkills))
		if len(t.AssigneeIDs) > 0 {
			fmt.Printf("  Assignees: %s\n", strings.Join(t.AssigneeIDs, ", "))
		}
		if t.Description != "" {
			fmt.Printf("\n%s\n", t.Description)
		}
		if len(t.ActivityLog) > 0 {
			fmt.Printf("\n%s\n", cyan("Activity:"))
			for _, e := range t.ActivityLog {
				fmt.Printf("  %s  %-20s %s\n", gray(e.Timestamp.Format("2006-01-02 15:04")), e.Kind, e.Message)
			}
		}
		fmt.Println()
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id> <status>",
	Short: "Set a task's status (todo, in_progress, done, blocked)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		status := types.Status(args[1])
		if !status.IsValid() {
			fatalf("invalid status: %s", args[1])
		}
		a := mustApp(cmd)
		if err := a.Store.UpdateTaskStatus(cmd.Context(), args[0], status); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Task %s is now %s\n", green("✓"), args[0], status)
	},
}

func init() {
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Filter by status")
	taskListCmd.Flags().BoolVar(&taskListAll, "all", false, "Include done tasks")
	taskListCmd.Flags().StringVar(&taskListAssignee, "assignee", "", "Filter by assignee ID")
	taskListCmd.Flags().StringVar(&taskListProject, "project", "", "Filter by project ID")
	taskListCmd.Flags().IntVar(&taskListLimit, "limit", 0, "Maximum tasks to show")

	taskCmd.AddCommand(taskAssignCmd, taskListCmd, taskShowCmd, taskStatusCmd)
	rootCmd.AddCommand(taskCmd)
}
