package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change the settings stored in config.toml.

Run 'docmind settings set' without arguments to list the keys that can be set.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Args:  cobra.RangeArgs(0, 2),
	RunE:  runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

// settingSetters maps config keys to functions applying a string value.
var settingSetters = map[string]func(s *domain.AppSettings, value string) error{
	"library.root": func(s *domain.AppSettings, v string) error {
		s.Library.Root = v
		return nil
	},
	"library.sidecar_suffix": func(s *domain.AppSettings, v string) error {
		if v == "" {
			return fmt.Errorf("%w: sidecar suffix must not be empty", domain.ErrInvalidInput)
		}
		s.Library.SidecarSuffix = v
		return nil
	},
	"search.fuzzy_threshold": func(s *domain.AppSettings, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		s.Search.FuzzyThreshold = f
		return err
	},
	"search.max_results": func(s *domain.AppSettings, v string) error {
		n, err := strconv.Atoi(v)
		s.Search.MaxResults = n
		return err
	},
	"search.expand_synonyms": func(s *domain.AppSettings, v string) error {
		b, err := strconv.ParseBool(v)
		s.Search.ExpandSynonyms = b
		return err
	},
	"search.use_cache": func(s *domain.AppSettings, v string) error {
		b, err := strconv.ParseBool(v)
		s.Search.UseCache = b
		return err
	},
	"cache.max_entries": func(s *domain.AppSettings, v string) error {
		n, err := strconv.Atoi(v)
		s.Cache.MaxEntries = n
		return err
	},
	"index.data_dir": func(s *domain.AppSettings, v string) error {
		s.Index.DataDir = v
		return nil
	},
	"index.persist": func(s *domain.AppSettings, v string) error {
		b, err := strconv.ParseBool(v)
		s.Index.Persist = b
		return err
	},
	"index.rebuild_schedule": func(s *domain.AppSettings, v string) error {
		s.Index.RebuildSchedule = v
		return nil
	},
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}
	if svc.Settings == nil {
		return errors.New("settings service not configured")
	}

	settings, err := svc.Settings.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println(titleStyle.Render("Current Settings"))
	cmd.Println()

	cmd.Println(headingStyle.Render("[library]"))
	cmd.Printf("  root = %s\n", orUnset(settings.Library.Root))
	cmd.Printf("  sidecar_suffix = %s\n", settings.Library.SidecarSuffix)
	cmd.Println()

	cmd.Println(headingStyle.Render("[search]"))
	cmd.Printf("  fuzzy_threshold = %.2f\n", settings.Search.FuzzyThreshold)
	cmd.Printf("  max_results = %d\n", settings.Search.MaxResults)
	cmd.Printf("  expand_synonyms = %t\n", settings.Search.ExpandSynonyms)
	cmd.Printf("  use_cache = %t\n", settings.Search.UseCache)
	cmd.Println()

	cmd.Println(headingStyle.Render("[cache]"))
	cmd.Printf("  max_entries = %d\n", settings.Cache.MaxEntries)
	cmd.Println()

	cmd.Println(headingStyle.Render("[index]"))
	cmd.Printf("  persist = %t\n", settings.Index.Persist)
	cmd.Printf("  data_dir = %s\n", orUnset(settings.Index.DataDir))
	cmd.Printf("  rebuild_schedule = %s\n", orUnset(settings.Index.RebuildSchedule))

	if len(settings.Synonyms) > 0 {
		cmd.Println()
		cmd.Println(headingStyle.Render("[synonyms]"))
		tokens := make([]string, 0, len(settings.Synonyms))
		for token := range settings.Synonyms {
			tokens = append(tokens, token)
		}
		sort.Strings(tokens)
		for _, token := range tokens {
			cmd.Printf("  %s = %s\n", token, strings.Join(settings.Synonyms[token], ", "))
		}
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if len(args) < 2 {
		cmd.Println("Settable keys:")
		for _, key := range settingKeys() {
			cmd.Printf("  %s\n", key)
		}
		if len(args) == 1 {
			return fmt.Errorf("missing value for %s", args[0])
		}
		return nil
	}

	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}
	if svc.Settings == nil {
		return errors.New("settings service not configured")
	}

	key, value := args[0], args[1]
	apply, ok := settingSetters[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	settings, err := svc.Settings.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	if err := apply(settings, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := svc.Settings.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	cmd.Printf("Set %s = %s\n", key, value)
	return nil
}

func settingKeys() []string {
	keys := make([]string, 0, len(settingSetters))
	for k := range settingSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
