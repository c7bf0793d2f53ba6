package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"

	"github.com/spf13/cobra"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/store"
)

var (
	ingestIDCol            string
	ingestColsToIgnore     []string
	ingestDmetaCols        []string
	ingestBatchSize        int
	ingestWriteCountersNow bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.ndjson>",
	Short: "Load newline-delimited JSON records into the store",
	Long: `Reads a file of newline-delimited JSON objects, one record per line,
and writes them into the index store in batches.

Example:
  fuzzyfinder ingest people.ndjson --id-col person_id --batch-size 5000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestIDCol, "id-col", "", "column that uniquely identifies each record (required)")
	ingestCmd.Flags().StringSliceVar(&ingestColsToIgnore, "ignore-col", nil, "column to exclude from indexing (repeatable)")
	ingestCmd.Flags().StringSliceVar(&ingestDmetaCols, "dmeta-col", nil, "column to generate phonetic variants for (repeatable; default is all columns)")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "records per ingest batch (0 uses config default)")
	ingestCmd.Flags().BoolVar(&ingestWriteCountersNow, "write-counters-now", true, "recompute token-rarity stats after this ingest")
	ingestCmd.MarkFlagRequired("id-col")
}

func runIngest(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	batchSize := ingestBatchSize
	if batchSize <= 0 {
		batchSize = cfg.Ingest.BatchSize
	}

	opts := []store.Option{}
	if len(ingestColsToIgnore) > 0 {
		opts = append(opts, store.WithColsToIgnore(ingestColsToIgnore))
	}
	if len(ingestDmetaCols) > 0 {
		opts = append(opts, store.WithDmetaCols(ingestDmetaCols))
	}

	s, err := store.Open(cfg.Store.Path, opts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	stats, err := s.WriteBatch(context.Background(), ndjsonRecords(f), ingestIDCol, batchSize, ingestWriteCountersNow)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if ingestWriteCountersNow {
		if err := s.BuildOrReplaceStatsTables(context.Background()); err != nil {
			return fmt.Errorf("failed to recompute token stats: %w", err)
		}
	}

	fmt.Printf("ingested %d records (%d skipped as duplicates)\n", stats.RecordsWritten, stats.RecordsSkipped)
	return nil
}

// ndjsonRecords streams a newline-delimited JSON file as string-valued
// field maps, the ingestion contract store.WriteBatch expects.
func ndjsonRecords(f *os.File) iter.Seq[map[string]string] {
	return func(yield func(map[string]string) bool) {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var raw map[string]any
			if err := json.Unmarshal(line, &raw); err != nil {
				fmt.Fprintf(os.Stderr, "skipping unparsable line: %v\n", err)
				continue
			}

			record := make(map[string]string, len(raw))
			for k, v := range raw {
				record[k] = fmt.Sprintf("%v", v)
			}

			if !yield(record) {
				return
			}
		}
	}
}
