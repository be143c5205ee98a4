package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Devibnu/talkabiz-sub022/pkg/config"
	"github.com/Devibnu/talkabiz-sub022/pkg/export"
	"github.com/Devibnu/talkabiz-sub022/pkg/ledger"
	"github.com/Devibnu/talkabiz-sub022/pkg/store"
)

func runExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		outPath     string
		fromStr     string
		toStr       string
		category    string
		profilesDir string
		profileCode string
		s3Bucket    string
		gcsBucket   string
		maxCount    int
	)
	cmd.StringVar(&outPath, "out", "", "Output path for the evidence pack zip (REQUIRED)")
	cmd.StringVar(&fromStr, "from", "", "Window start (RFC 3339)")
	cmd.StringVar(&toStr, "to", "", "Window end (RFC 3339)")
	cmd.StringVar(&category, "category", "", "Restrict to one action category")
	cmd.StringVar(&profilesDir, "profiles-dir", "", "Directory holding retention profile YAML files")
	cmd.StringVar(&profileCode, "profile", "", "Jurisdiction code whose retention profile gates the export")
	cmd.StringVar(&s3Bucket, "s3-bucket", "", "Also upload the pack to this S3 bucket")
	cmd.StringVar(&gcsBucket, "gcs-bucket", "", "Also upload the pack to this GCS bucket")
	cmd.IntVar(&maxCount, "max", 0, "Maximum entries to include (0 = store page maximum)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if outPath == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		cmd.Usage()
		return 2
	}

	var profile *config.RetentionProfile
	if profileCode != "" {
		if profilesDir == "" {
			fmt.Fprintln(stderr, "Error: --profile requires --profiles-dir")
			return 2
		}
		p, err := config.LoadProfile(profilesDir, profileCode)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		profile = p
	}

	var filter store.Filter
	if fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: bad --from: %v\n", err)
			return 2
		}
		filter.From = &t
	}
	if toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: bad --to: %v\n", err)
			return 2
		}
		filter.To = &t
	}
	if category != "" {
		filter.Category = ledger.Category(category)
	}

	ctx := context.Background()
	e, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close()

	pack, packChecksum, err := export.NewExporter(e.store).GeneratePack(ctx, export.Request{
		Filter:     filter,
		MaxEntries: maxCount,
		Profile:    profile,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if err := os.WriteFile(outPath, pack, 0o600); err != nil {
		fmt.Fprintf(stderr, "Error writing pack: %v\n", err)
		return 2
	}
	fmt.Fprintf(stdout, "Evidence pack written: %s (sha256 %s)\n", outPath, packChecksum)

	key := fmt.Sprintf("audit-packs/%s.zip", time.Now().UTC().Format("20060102T150405Z"))
	if s3Bucket != "" {
		up, err := export.NewS3Uploader(ctx, s3Bucket)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		loc, err := up.Upload(ctx, key, pack, packChecksum)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		fmt.Fprintf(stdout, "Uploaded: %s\n", loc)
	}
	if gcsBucket != "" {
		up, err := export.NewGCSUploader(ctx, gcsBucket)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer up.Close()
		loc, err := up.Upload(ctx, key, pack, packChecksum)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		fmt.Fprintf(stdout, "Uploaded: %s\n", loc)
	}

	return 0
}
