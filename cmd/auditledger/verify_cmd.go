package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Devibnu/talkabiz-sub022/pkg/verify"
)

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		limit      int
		cursor     int64
		jsonOutput bool
	)
	cmd.IntVar(&limit, "limit", 10000, "Maximum number of entries to examine")
	cmd.Int64Var(&cursor, "cursor", 0, "Resume cursor from a previous partial run")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	e, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close()

	vopts := []verify.Option{verify.WithChunkSize(e.cfg.VerifyChunkSize)}
	if e.obs != nil {
		vopts = append(vopts, verify.WithObservability(e.obs))
	}
	v := verify.NewVerifier(e.store, e.engine, vopts...)
	report, err := v.RunCheckFrom(ctx, cursor, limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "Examined: %d\nValid:    %d\nInvalid:  %d\nRoot:     %s\nState:    %s\n",
			report.Total, report.ValidCount, report.InvalidCount, report.WindowRoot, report.State)
		for _, r := range report.Results {
			if r.Valid {
				continue
			}
			fmt.Fprintf(stdout, "TAMPERED id=%d uuid=%s action=%s entity=%s/%s: %s\n",
				r.ID, r.EntryUUID, r.Action, r.EntityType, r.EntityID, r.Reason)
		}
		if report.ResumeCursor != 0 {
			fmt.Fprintf(stdout, "Partial run; resume with --cursor %d\n", report.ResumeCursor)
		}
	}

	if report.InvalidCount > 0 {
		return 1
	}
	return 0
}
