package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/quota"
	"github.com/ev119/erlocator/internal/output"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect and clear realtime quota blocks",
	Long: `Inspect and clear the per-region quota blocks recorded when the realtime
service answers 429. Requires a shared kv driver (redis or libsql).`,
}

var quotaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active quota blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		prefix, _ := cmd.Flags().GetString("prefix")

		guard, closeFn, err := openGuard(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		blocks, err := guard.List(cmd.Context())
		if err != nil {
			return err
		}
		blocks = filterBlocks(blocks, prefix)

		if format == output.FormatTable && len(blocks) == 0 {
			_, err := fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox("Quota Blocks\n\n(no active quota blocks)", 0))
			return err
		}

		rendered, err := output.NewFormatter(format).FormatBlocks(blocks, time.Now())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear quota blocks",
	Example: `  erlocator quota reset --pair "서울|강남구"
  erlocator quota reset --all --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")
		rawPair, _ := cmd.Flags().GetString("pair")
		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		var pair *core.RegionPair
		switch {
		case all && rawPair != "":
			return errors.New("--all and --pair are mutually exclusive")
		case all:
			if !yes && !dryRun {
				return errors.New("--all requires --yes (or use --dry-run)")
			}
		case rawPair != "":
			parsed, err := parsePairFlag(rawPair)
			if err != nil {
				return err
			}
			pair = &parsed
		default:
			return errors.New("one of --all or --pair is required")
		}

		guard, closeFn, err := openGuard(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		blocks, err := guard.List(cmd.Context())
		if err != nil {
			return err
		}
		matched := len(blocks)
		if pair != nil {
			matched = 0
			for _, block := range blocks {
				if block.Pair == *pair {
					matched++
				}
			}
		}

		if dryRun {
			return writeQuotaResetResult(format, cmd.OutOrStdout(), matched, 0, true)
		}

		deleted, err := guard.Reset(cmd.Context(), pair)
		if err != nil {
			return err
		}
		return writeQuotaResetResult(format, cmd.OutOrStdout(), matched, deleted, false)
	},
}

func init() {
	quotaListCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|markdown|json")
	quotaListCmd.Flags().String("prefix", "", "Only list blocks whose region1 starts with prefix")

	quotaResetCmd.Flags().Bool("all", false, "Clear every quota block")
	quotaResetCmd.Flags().String("pair", "", `Clear one block, given as "region1|region2"`)
	quotaResetCmd.Flags().Bool("yes", false, "Confirm --all")
	quotaResetCmd.Flags().Bool("dry-run", false, "Report what would be cleared")
	quotaResetCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")

	quotaCmd.AddCommand(quotaListCmd)
	quotaCmd.AddCommand(quotaResetCmd)
	rootCmd.AddCommand(quotaCmd)
}

func openGuard(cmd *cobra.Command) (*quota.Guard, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := openScanner(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = store.Close() }
	return quota.New(store, cfg.Realtime.QuotaBlockTTL), closeFn, nil
}

// parsePairFlag parses "region1|region2".
func parsePairFlag(raw string) (core.RegionPair, error) {
	r1, r2, ok := strings.Cut(raw, "|")
	r1, r2 = strings.TrimSpace(r1), strings.TrimSpace(r2)
	if !ok || r1 == "" || r2 == "" {
		return core.RegionPair{}, fmt.Errorf("invalid --pair %q: expected region1|region2", raw)
	}
	return core.RegionPair{Region1: r1, Region2: r2}, nil
}

func filterBlocks(blocks []quota.Block, prefix string) []quota.Block {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return blocks
	}
	filtered := make([]quota.Block, 0, len(blocks))
	for _, block := range blocks {
		if strings.HasPrefix(block.Pair.Region1, prefix) {
			filtered = append(filtered, block)
		}
	}
	return filtered
}

func writeQuotaResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(map[string]any{
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would clear %d quota block(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Cleared %d/%d quota block(s)\n", deleted, matched)
	return err
}
