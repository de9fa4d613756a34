package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

var jobsStatus string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Job requisitions raised for tasks no one can take",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List job requisitions",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		reqs, err := a.Store.ListJobRequisitions(cmd.Context(), storage.RequisitionFilter{
			Status: types.RequisitionStatus(jobsStatus),
		})
		if err != nil {
			fatalf("%v", err)
		}
		if len(reqs) == 0 {
			fmt.Println("No job requisitions")
			return
		}
		for _, r := range reqs {
			fmt.Printf("%s  %-8s %s\n", gray(r.ID), r.Status, bold(r.SuggestedTitle))
			fmt.Printf("    task %s, skills: %s\n", cyan(r.TaskID), types.SkillText(r.RequiredSkills))
			if len(r.MissingSkills) > 0 {
				fmt.Printf("    missing: %s\n", yellow(types.SkillText(r.MissingSkills)))
			}
			if r.RequiredExperienceYears > 0 {
				fmt.Printf("    experience: %d+ years\n", r.RequiredExperienceYears)
			}
		}
	},
}

var jobsSetCmd = &cobra.Command{
	Use:   "set <requisition-id> <status>",
	Short: "Move a requisition to pending, ready, posted or closed",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		status := types.RequisitionStatus(args[1])
		if !status.IsValid() {
			fatalf("invalid status: %s", args[1])
		}
		a := mustApp(cmd)
		if err := a.Store.UpdateJobRequisitionStatus(cmd.Context(), args[0], status); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Requisition %s is now %s\n", green("✓"), args[0], status)
	},
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status")
	jobsCmd.AddCommand(jobsListCmd, jobsSetCmd)
	rootCmd.AddCommand(jobsCmd)
}
