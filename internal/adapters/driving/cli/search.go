package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

var (
	searchLimit      int
	searchThreshold  float64
	searchNoSynonyms bool
	searchNoCache    bool
	searchScope      string
	searchBuckets    []string
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search documents and memory",
	Long: `Searches the memory index and the document records for a free-text question.

Exact terms (amounts, dates, names) score highest, then party names, then
fuzzy matches. A threshold of 0 lists everything, newest first; 1 keeps
exact-token matches only.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	flags := searchCmd.Flags()
	flags.IntVarP(&searchLimit, "limit", "n", 0, "maximum results per list (default from settings)")
	flags.Float64Var(&searchThreshold, "threshold", domain.DefaultFuzzyThreshold, "minimum score in [0,1]")
	flags.BoolVar(&searchNoSynonyms, "no-synonyms", false, "disable synonym expansion")
	flags.BoolVar(&searchNoCache, "no-cache", false, "bypass the result cache")
	flags.StringVar(&searchScope, "scope", "", "all, memory or documents")
	flags.StringSliceVar(&searchBuckets, "bucket", nil, "restrict memory hits to these buckets")
	flags.BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}

	opts, err := searchOptions(cmd, svc)
	if err != nil {
		return err
	}

	result, err := svc.Search.Search(cmd.Context(), args[0], &opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, result)
	}
	cmd.Print(renderResult(result))
	return nil
}

// searchOptions starts from the configured defaults and applies only the
// flags the user set.
func searchOptions(cmd *cobra.Command, svc *Services) (domain.SearchOptions, error) {
	opts := domain.DefaultSearchOptions()
	if svc.Settings != nil {
		settings, err := svc.Settings.Get()
		if err != nil {
			return opts, fmt.Errorf("failed to get settings: %w", err)
		}
		opts = settings.Search
	}

	flags := cmd.Flags()
	if flags.Changed("limit") {
		opts.MaxResults = searchLimit
	}
	if flags.Changed("threshold") {
		opts.FuzzyThreshold = searchThreshold
	}
	if searchNoSynonyms {
		opts.ExpandSynonyms = false
	}
	if searchNoCache {
		opts.UseCache = false
	}
	if flags.Changed("scope") {
		opts.Scope = domain.SearchScope(strings.ToLower(searchScope))
	}
	if len(searchBuckets) > 0 {
		opts.Buckets = searchBuckets
	}
	return opts, nil
}

type resultJSON struct {
	ID          string             `json:"id"`
	Query       string             `json:"query"`
	SearchPath  string             `json:"search_path"`
	Relevance   float64            `json:"relevance"`
	Answer      *answerJSON        `json:"answer,omitempty"`
	MemoryHits  []memoryHitJSON    `json:"memory_hits"`
	Documents   []documentHitJSON  `json:"documents"`
	TotalTimeMs float64            `json:"total_time_ms"`
	StageTimes  map[string]float64 `json:"stage_times_ms"`
}

type answerJSON struct {
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"`
	Sources    []citationJSON `json:"sources"`
}

type citationJSON struct {
	Kind    string `json:"kind"`
	Ref     string `json:"ref"`
	ID      string `json:"id"`
	Excerpt string `json:"excerpt,omitempty"`
}

type memoryHitJSON struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Sources     []string  `json:"sources"`
	LastUpdated time.Time `json:"last_updated"`
	Relevance   float64   `json:"relevance"`
}

type documentHitJSON struct {
	ID          string  `json:"id"`
	Filename    string  `json:"filename"`
	Category    string  `json:"category"`
	Status      string  `json:"status"`
	Relevance   float64 `json:"relevance"`
	MatchType   string  `json:"match_type"`
	MatchReason string  `json:"match_reason,omitempty"`
}

func toResultJSON(r *domain.SearchResult) resultJSON {
	out := resultJSON{
		ID:          r.ID,
		Query:       r.Query,
		SearchPath:  string(r.SearchPath),
		Relevance:   r.Relevance,
		MemoryHits:  make([]memoryHitJSON, 0, len(r.MemoryHits)),
		Documents:   make([]documentHitJSON, 0, len(r.Documents)),
		TotalTimeMs: r.Performance.TotalTimeMs,
		StageTimes:  r.Performance.StageTimesMs,
	}
	if r.Answer != nil {
		a := &answerJSON{Text: r.Answer.Text, Confidence: r.Answer.Confidence, Sources: []citationJSON{}}
		for _, c := range r.Answer.Sources {
			a.Sources = append(a.Sources, citationJSON{Kind: string(c.Kind), Ref: c.Ref, ID: c.ID, Excerpt: c.Excerpt})
		}
		out.Answer = a
	}
	for i := range r.MemoryHits {
		h := &r.MemoryHits[i]
		out.MemoryHits = append(out.MemoryHits, memoryHitJSON{
			Bucket:      h.Fact.Bucket,
			Key:         h.Fact.Key,
			Value:       h.Fact.Value,
			Sources:     h.Fact.SourceDocumentIDs,
			LastUpdated: h.Fact.LastUpdated,
			Relevance:   h.Relevance,
		})
	}
	for i := range r.Documents {
		h := &r.Documents[i]
		out.Documents = append(out.Documents, documentHitJSON{
			ID:          h.Record.ID,
			Filename:    h.Record.Filename,
			Category:    string(h.Record.Category),
			Status:      string(h.Record.Status),
			Relevance:   h.Relevance,
			MatchType:   string(h.MatchType),
			MatchReason: h.MatchReason,
		})
	}
	return out
}

func outputSearchJSON(cmd *cobra.Command, result *domain.SearchResult) error {
	data, err := json.MarshalIndent(toResultJSON(result), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
