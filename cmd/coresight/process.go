package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coresight/coresight/internal/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process <events.jsonl>",
	Short: "Dispatch a stream of issue, commit and task events",
	Long: `Read one JSON event per line and dispatch them concurrently. Each event
has a kind (issue, commit or task) and the matching payload:

  {"kind":"issue","issue":{"title":"Login broken","description":"..."}}
  {"kind":"commit","commit":{"hash":"a1b2c3","message":"...","author_email":"alice@example.com"}}
  {"kind":"task","task_id":"t-42"}

Use - to read from stdin. Transient failures are retried with backoff.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				fatalf("%v", err)
			}
			defer f.Close()
			r = f
		}

		events, err := ReadEvents(r)
		if err != nil {
			fatalf("%v", err)
		}

		a := mustApp(cmd)
		handles := make([]*pipeline.Handle, len(events))
		for i, ev := range events {
			handles[i] = a.Dispatcher.Submit(cmd.Context(), ev)
		}

		failed := 0
		for i, h := range handles {
			res, err := h.Wait()
			if err != nil {
				failed++
				fmt.Printf("%s event %d (%s) failed after %d attempt(s): %v\n",
					red("✗"), i+1, events[i].Kind, h.Attempts(), err)
				continue
			}
			switch {
			case res.Issue != nil:
				printOutcome(res.Issue)
			case res.Commit != nil:
				printCommitResult(res.Commit)
			case res.Assignment != nil:
				printAssignment(res.Assignment)
			}
		}

		fmt.Printf("\n%s %d event(s) processed, %d failed\n", green("✓"), len(events)-failed, failed)
		printGatewayStats(a)
		if failed > 0 {
			os.Exit(1)
		}
	},
}

// ReadEvents decodes newline-delimited JSON events. Blank lines and lines
// starting with # are skipped.
func ReadEvents(r io.Reader) ([]pipeline.Event, error) {
	var events []pipeline.Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var ev pipeline.Event
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

func init() {
	rootCmd.AddCommand(processCmd)
}
