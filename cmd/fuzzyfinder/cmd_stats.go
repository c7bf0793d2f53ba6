package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store size and counter-sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats()
	},
}

func runStats() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close()

	stats, err := s.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	fmt.Printf("path:              %s\n", stats.Path)
	fmt.Printf("schema version:    %d\n", store.SchemaVersion)
	fmt.Printf("records:           %d\n", stats.RecordCount)
	fmt.Printf("file size (bytes): %d\n", stats.FileSizeBytes)
	fmt.Printf("counter columns:   %d\n", stats.CounterColumns)
	fmt.Printf("counters in sync:  %t\n", stats.CountersInSync)
	return nil
}
