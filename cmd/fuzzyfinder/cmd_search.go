package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/finder"
	"github.com/moj-analytical-services/fuzzyfinder-go/internal/store"
)

var (
	searchLimit     int
	searchIntensity int
)

var searchCmd = &cobra.Command{
	Use:   "search <query.json>",
	Short: "Find and score fuzzy matches for a query record",
	Long: `Loads a single JSON object as a query record and runs the candidate
search against the store, printing every match found, ranked by score.

Example:
  fuzzyfinder search query.json --limit 20 --intensity 200`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(args[0])
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of records to return (0 uses config default)")
	searchCmd.Flags().IntVar(&searchIntensity, "intensity", 0, "number of randomised searches to run (0 uses config default)")
}

func runSearch(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	var query map[string]string
	if err := json.Unmarshal(raw, &query); err != nil {
		return fmt.Errorf("failed to parse query record: %w", err)
	}

	fcfg := finder.Config{
		ReturnRecordsLimit:    cfg.Search.ReturnRecordsLimit,
		IndividualSearchLimit: cfg.Search.IndividualSearchLimit,
		SearchIntensity:       cfg.Search.SearchIntensity,
		BestScoreThreshold:    cfg.Search.BestScoreThreshold,
	}
	if searchLimit > 0 {
		fcfg.ReturnRecordsLimit = searchLimit
	}
	if searchIntensity > 0 {
		fcfg.SearchIntensity = searchIntensity
	}

	f := finder.New(s, fcfg)
	matches, err := f.FindMatches(context.Background(), query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	type ranked struct {
		ID     string
		Record finder.MatchRecord
	}
	results := make([]ranked, 0, len(matches))
	for id, m := range matches {
		results = append(results, ranked{ID: id, Record: m})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Record.Score > results[j].Record.Score })

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
