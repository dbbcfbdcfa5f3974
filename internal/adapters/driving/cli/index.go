package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var factsJSON bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the memory index",
	Long: `Inspect and maintain the memory index built from metadata sidecars.

The index is updated automatically by 'docmind watch'. These commands
apply changes by hand.`,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rescan every sidecar and rebuild the index",
	Args:  cobra.NoArgs,
	RunE:  runIndexRebuild,
}

var indexIngestCmd = &cobra.Command{
	Use:   "ingest [sidecar...]",
	Short: "Ingest metadata sidecars",
	Long:  `Reads each sidecar file and upserts its facts. Paths are relative to the working directory.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndexIngest,
}

var indexRemoveCmd = &cobra.Command{
	Use:   "remove [record-id...]",
	Short: "Remove records from the index",
	Long:  `Strips each record's facts and deletes its sidecar. Record IDs are paths relative to the library root, without the sidecar suffix.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndexRemove,
}

var indexFactsCmd = &cobra.Command{
	Use:   "facts [bucket]",
	Short: "List facts, optionally from one bucket",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndexFacts,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runIndexStatus,
}

func init() {
	indexFactsCmd.Flags().BoolVar(&factsJSON, "json", false, "output facts as JSON")

	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexIngestCmd)
	indexCmd.AddCommand(indexRemoveCmd)
	indexCmd.AddCommand(indexFactsCmd)
	indexCmd.AddCommand(indexStatusCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexRebuild(cmd *cobra.Command, _ []string) error {
	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}
	if err := svc.Index.RebuildAll(cmd.Context()); err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	stats := svc.Index.Stats()
	cmd.Printf("Rebuilt index: %d records, %d facts\n", stats.Records, totalFacts(stats.Buckets))
	return nil
}

func runIndexIngest(cmd *cobra.Command, args []string) error {
	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}

	failed := 0
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			path = arg
		}
		rec, err := svc.Sidecars.Read(path)
		if err == nil {
			err = svc.Index.Ingest(cmd.Context(), *rec)
		}
		if err != nil {
			cmd.PrintErrf("Failed %s: %v\n", arg, err)
			failed++
			continue
		}
		cmd.Printf("Ingested %s\n", rec.ID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sidecars failed", failed, len(args))
	}
	return nil
}

func runIndexRemove(cmd *cobra.Command, args []string) error {
	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}

	failed := 0
	for _, id := range args {
		if err := svc.Index.Remove(cmd.Context(), id); err != nil {
			cmd.PrintErrf("Failed %s: %v\n", id, err)
			failed++
			continue
		}
		cmd.Printf("Removed %s\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d records failed", failed, len(args))
	}
	return nil
}

type factJSON struct {
	Bucket  string   `json:"bucket"`
	Key     string   `json:"key"`
	Value   string   `json:"value"`
	Sources []string `json:"sources"`
}

func runIndexFacts(cmd *cobra.Command, args []string) error {
	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}

	bucket := ""
	if len(args) == 1 {
		bucket = args[0]
	}
	facts, err := svc.Index.Query(bucket, nil)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if factsJSON {
		out := make([]factJSON, 0, len(facts))
		for i := range facts {
			out = append(out, factJSON{
				Bucket:  facts[i].Bucket,
				Key:     facts[i].Key,
				Value:   facts[i].Value,
				Sources: facts[i].SourceDocumentIDs,
			})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal facts: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(facts) == 0 {
		cmd.Println("No facts found.")
		return nil
	}

	current := ""
	for i := range facts {
		f := &facts[i]
		if f.Bucket != current {
			if current != "" {
				cmd.Println()
			}
			current = f.Bucket
			cmd.Println(headingStyle.Render(current))
		}
		cmd.Printf("  %s: %s %s\n", f.Key, f.Value,
			mutedStyle.Render("["+strings.Join(f.SourceDocumentIDs, ", ")+"]"))
	}
	return nil
}

func runIndexStatus(cmd *cobra.Command, _ []string) error {
	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}

	stats := svc.Index.Stats()
	cmd.Println(titleStyle.Render("Memory Index"))
	if svc.Sidecars != nil {
		cmd.Printf("  Root:      %s\n", svc.Sidecars.Root())
	}
	available := "yes"
	if !stats.Available {
		available = warnStyle.Render("no (run 'docmind index rebuild')")
	}
	cmd.Printf("  Available: %s\n", available)
	cmd.Printf("  Version:   %d\n", stats.Version)
	cmd.Printf("  Records:   %d\n", stats.Records)
	cmd.Printf("  Facts:     %d\n", totalFacts(stats.Buckets))

	buckets := make([]string, 0, len(stats.Buckets))
	for b := range stats.Buckets {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	for _, b := range buckets {
		cmd.Printf("    %-10s %d\n", b, stats.Buckets[b])
	}
	return nil
}

func totalFacts(buckets map[string]int) int {
	n := 0
	for _, c := range buckets {
		n += c
	}
	return n
}
