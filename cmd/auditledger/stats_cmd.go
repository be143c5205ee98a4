package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Devibnu/talkabiz-sub022/pkg/query"
)

func runStatsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("stats", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		fromStr    string
		toStr      string
		jsonOutput bool
	)
	cmd.StringVar(&fromStr, "from", "", "Scope counts to entries at or after this time (RFC 3339)")
	cmd.StringVar(&toStr, "to", "", "Scope counts to entries at or before this time (RFC 3339)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	var from, to *time.Time
	if fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: bad --from: %v\n", err)
			return 2
		}
		from = &t
	}
	if toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: bad --to: %v\n", err)
			return 2
		}
		to = &t
	}

	ctx := context.Background()
	e, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close()

	st, err := query.NewEngine(e.store).Stats(ctx, from, to)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(st, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}

	fmt.Fprintf(stdout, "Total entries:   %d\n", st.Total)
	fmt.Fprintf(stdout, "Entries today:   %d\n", st.Today)
	fmt.Fprintf(stdout, "Reversals:       %d\n", st.ReversalCount)
	if st.LastEntryTime != nil {
		fmt.Fprintf(stdout, "Last entry:      %s\n", st.LastEntryTime.Format(time.RFC3339))
	}
	fmt.Fprintln(stdout, "By category:")
	for cat, n := range st.ByCategory {
		fmt.Fprintf(stdout, "  %-15s %d\n", cat, n)
	}
	fmt.Fprintln(stdout, "By status:")
	for status, n := range st.ByStatus {
		fmt.Fprintf(stdout, "  %-15s %d\n", status, n)
	}
	return 0
}
