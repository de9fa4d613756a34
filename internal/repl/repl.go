// Package repl is the interactive coresight shell.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/coresight/coresight/internal/analytics"
	"github.com/coresight/coresight/internal/matching"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

// Assigner runs skill matching for a stored task.
type Assigner interface {
	AssignByID(ctx context.Context, taskID string) (*matching.Result, error)
}

// Reporter produces analytics reports; *analytics.Service satisfies it.
type Reporter interface {
	Impact(ctx context.Context, userID string) (*analytics.ImpactReport, error)
	TaskCost(ctx context.Context, taskID string) (*analytics.TaskCostReport, error)
	FocusHealth(ctx context.Context, days, threshold int) (*analytics.FocusReport, error)
}

// REPL represents the interactive shell
type REPL struct {
	store     storage.Storage
	assigner  Assigner
	reporter  Reporter
	out       io.Writer
	rl        *readline.Instance
	ctx       context.Context
	commands  map[string]CommandHandler
	helpOrder []helpEntry
}

type helpEntry struct {
	name string
	desc string
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Store    storage.Storage
	Assigner Assigner
	Reporter Reporter
	// Out defaults to stdout
	Out io.Writer
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Assigner == nil {
		return nil, fmt.Errorf("assigner is required")
	}
	if cfg.Reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		store:    cfg.Store,
		assigner: cfg.Assigner,
		reporter: cfg.Reporter,
		out:      out,
		ctx:      context.Background(),
		commands: make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("coresight> "),
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	if handler, ok := r.commands[strings.ToLower(parts[0])]; ok {
		return handler(parts[1:])
	}
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(r.out, "%s Unknown command %q. Use 'help' for available commands.\n", yellow("Note:"), parts[0])
	return nil
}

func (r *REPL) register(handler CommandHandler, desc string, names ...string) {
	for _, n := range names {
		r.commands[n] = handler
	}
	r.helpOrder = append(r.helpOrder, helpEntry{name: strings.Join(names, ", "), desc: desc})
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	r.register(r.cmdHelp, "Show this help message", "help", "?")
	r.register(r.cmdUsers, "List developers and their skills", "users")
	r.register(r.cmdTasks, "List open tasks", "tasks")
	r.register(r.cmdAssign, "Assign a task to the best-fitting developer", "assign")
	r.register(r.cmdImpact, "Show a developer's code impact", "impact")
	r.register(r.cmdCost, "Show the cost of a task", "cost")
	r.register(r.cmdFocus, "Show team focus health [days]", "focus")
	r.register(r.cmdJobs, "List job requisitions", "jobs")
	r.register(r.cmdExit, "Exit the shell", "exit", "quit")
}

func (r *REPL) completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(r.commands))
	for _, h := range r.helpOrder {
		for _, name := range strings.Split(h.name, ", ") {
			items = append(items, readline.PcItem(name))
		}
	}
	return readline.NewPrefixCompleter(items...)
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("CoreSight shell"))
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))
	for _, h := range r.helpOrder {
		fmt.Fprintf(r.out, "  %-14s %s\n", green(h.name), h.desc)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdUsers(args []string) error {
	users, err := r.store.ListUsers(r.ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(r.out, "No users")
		return nil
	}
	for _, u := range users {
		fmt.Fprintf(r.out, "  %-12s %-20s $%.2f/h  %s\n", u.ID, u.Name, u.HourlyRate, types.SkillText(u.Skills))
	}
	return nil
}

func (r *REPL) cmdTasks(args []string) error {
	tasks, err := r.store.ListTasks(r.ctx, storage.TaskFilter{OpenOnly: true})
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(r.out, "No open tasks")
		return nil
	}
	for _, t := range tasks {
		fmt.Fprintf(r.out, "  %-12s %-11s %-8s %s\n", t.ID, t.Status, t.Priority, t.Title)
	}
	return nil
}

func (r *REPL) cmdAssign(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: assign <task-id>")
	}
	res, err := r.assigner.AssignByID(r.ctx, args[0])
	if err != nil {
		return err
	}
	switch {
	case res.Assigned:
		fmt.Fprintf(r.out, "Assigned %s to %s\n", res.Task.ID, res.Assignee.Name)
	case res.RequiresJobPosting:
		fmt.Fprintf(r.out, "No one can take %s (%v); flagged for a job posting\n", res.Task.ID, res.Reason)
	default:
		fmt.Fprintf(r.out, "%s not assigned: %v\n", res.Task.ID, res.Reason)
	}
	return nil
}

func (r *REPL) cmdImpact(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: impact <user-id>")
	}
	rep, err := r.reporter.Impact(r.ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s is a %s: %d commits, refactor ratio %.2f\n",
		rep.UserID, rep.Label, rep.TotalCommits, rep.OverallRefactorRatio)
	return nil
}

func (r *REPL) cmdCost(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cost <task-id>")
	}
	rep, err := r.reporter.TaskCost(r.ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s: $%.2f over %.2fh\n", rep.TaskTitle, rep.TotalCost, rep.TotalHours)
	if b := rep.Budget; b != nil {
		fmt.Fprintf(r.out, "  budget share $%.2f, variance $%.2f (%s)\n", b.ProratedBudget, b.Variance, b.Status)
	}
	return nil
}

func (r *REPL) cmdFocus(args []string) error {
	days := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("days must be a positive number (got %q)", args[0])
		}
		days = n
	}
	rep, err := r.reporter.FocusHealth(r.ctx, days, 0)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, rep.Alert.Message)
	for _, u := range rep.Users {
		fmt.Fprintf(r.out, "  %-20s %-6s avg=%.2f max=%d\n", u.UserName, u.Risk, u.AvgSwitches, u.MaxSwitches)
	}
	return nil
}

func (r *REPL) cmdJobs(args []string) error {
	reqs, err := r.store.ListJobRequisitions(r.ctx, storage.RequisitionFilter{})
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		fmt.Fprintln(r.out, "No job requisitions")
		return nil
	}
	for _, j := range reqs {
		fmt.Fprintf(r.out, "  %-8s %s (task %s)\n", j.Status, j.SuggestedTitle, j.TaskID)
	}
	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	if r.rl != nil {
		r.rl.Close()
	}
	return io.EOF
}
