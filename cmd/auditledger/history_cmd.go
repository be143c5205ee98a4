package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Devibnu/talkabiz-sub022/pkg/history"
	"github.com/Devibnu/talkabiz-sub022/pkg/store"
)

func runHistoryCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("history", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		entityType    string
		entityID      string
		correlation   string
		desc          bool
		limit         int
		cursor        int64
		cursorTimeStr string
		jsonOutput    bool
	)
	cmd.StringVar(&entityType, "entity-type", "", "Logical entity type, e.g. Invoice")
	cmd.StringVar(&entityID, "entity-id", "", "Entity primary key")
	cmd.StringVar(&correlation, "correlation", "", "Show all entries for a correlation id instead")
	cmd.BoolVar(&desc, "desc", false, "Newest first")
	cmd.IntVar(&limit, "limit", store.DefaultPageLimit, "Page size")
	cmd.Int64Var(&cursor, "cursor", 0, "Resume cursor id from a previous page")
	cmd.StringVar(&cursorTimeStr, "cursor-time", "", "Resume cursor timestamp from a previous page (RFC 3339)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	var cursorTime *time.Time
	if cursorTimeStr != "" {
		t, err := time.Parse(time.RFC3339Nano, cursorTimeStr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: bad --cursor-time: %v\n", err)
			return 2
		}
		cursorTime = &t
	}

	ctx := context.Background()
	e, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close()

	resolver := history.NewResolver(e.store)

	if correlation != "" {
		entries, err := resolver.RelatedByCorrelation(ctx, correlation)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		if jsonOutput {
			data, _ := json.MarshalIndent(entries, "", "  ")
			fmt.Fprintln(stdout, string(data))
			return 0
		}
		for _, entry := range entries {
			fmt.Fprintf(stdout, "%s  %-20s %s/%s %s\n",
				entry.OccurredAt.Format(time.RFC3339), entry.Action,
				entry.EntityType, entry.EntityID, entry.Status)
		}
		return 0
	}

	if entityType == "" || entityID == "" {
		fmt.Fprintln(stderr, "Error: --entity-type and --entity-id are required (or --correlation)")
		cmd.Usage()
		return 2
	}

	order := store.OrderAsc
	if desc {
		order = store.OrderDesc
	}
	page, err := resolver.History(ctx, entityType, entityID, order, store.PageRequest{
		Cursor:     cursor,
		CursorTime: cursorTime,
		Limit:      limit,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(page, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}
	for _, entry := range page.Entries {
		fmt.Fprintf(stdout, "%s  %-20s %s\n",
			entry.OccurredAt.Format(time.RFC3339), entry.Action, entry.Status)
	}
	if page.HasMore {
		fmt.Fprintf(stdout, "More entries; resume with --cursor %d --cursor-time %s\n",
			page.NextCursor, page.NextCursorTime.Format(time.RFC3339Nano))
	}
	return 0
}
