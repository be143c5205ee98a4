package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/time/rate"

	"github.com/Devibnu/talkabiz-sub022/pkg/idempotency"
	"github.com/Devibnu/talkabiz-sub022/pkg/ledger"
)

func runAppendCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("append", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		filePath   string
		jsonOutput bool
	)
	cmd.StringVar(&filePath, "file", "-", "Event JSON file, - for stdin")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the persisted entry as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	var in io.Reader = os.Stdin
	if filePath != "-" {
		f, err := os.Open(filePath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer f.Close()
		in = f
	}
	dec := json.NewDecoder(in)
	dec.UseNumber()
	var ev ledger.Event
	if err := dec.Decode(&ev); err != nil {
		fmt.Fprintf(stderr, "Error: bad event JSON: %v\n", err)
		return 2
	}

	ctx := context.Background()
	e, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close()

	opts := []ledger.WriterOption{
		ledger.WithRateLimit(rate.NewLimiter(rate.Limit(e.cfg.AppendRatePerSec), e.cfg.AppendBurst)),
	}
	if e.cfg.RedisAddr != "" {
		guard := idempotency.NewRedisGuard(e.cfg.RedisAddr, e.cfg.RedisPassword, e.cfg.RedisDB)
		defer guard.Close()
		opts = append(opts, ledger.WithIdempotencyGuard(guard))
	}
	if e.obs != nil {
		opts = append(opts, ledger.WithObservability(e.obs))
	}

	entry, err := ledger.NewWriter(e.store, e.engine, opts...).Append(ctx, ev)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}
	fmt.Fprintf(stdout, "Appended entry %d (%s) checksum %s\n",
		entry.ID, entry.EntryUUID, entry.Checksum)
	return 0
}
