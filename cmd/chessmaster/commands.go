package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chessmaster/internal/store"
	"chessmaster/internal/system"
	"chessmaster/internal/usage"
)

var historyLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache and session statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cache, err := store.Open(cfg.DBPath())
		if err != nil {
			return err
		}
		defer cache.Close()

		st, err := cache.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		writeCacheStats(out, st)

		tracker, err := usage.NewTracker(cfg.StatsPath(), "")
		if err != nil {
			return err
		}
		writeSessionStats(out, tracker.Stats())
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently presented lessons",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cache, err := store.Open(cfg.DBPath())
		if err != nil {
			return err
		}
		defer cache.Close()

		entries, err := cache.History().Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		writeHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <topic>",
	Short: "Fetch content for one topic into the cache",
	Long: `Searches for a topic and stores new material in the cache without
presenting it. Useful to warm the cache before going offline.

Example:
  chessmaster fetch "rook endgames"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		topic := strings.Join(args, " ")

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		p, err := system.Boot(ctx, cfg, system.BootOptions{})
		if err != nil {
			return err
		}
		defer p.Close()

		logger.Info("fetching", zap.String("topic", topic))
		items, err := p.Builder.Collect(ctx, topic)
		if err != nil {
			return fmt.Errorf("fetch %q: %w", topic, err)
		}
		out := cmd.OutOrStdout()
		for _, it := range items {
			fmt.Fprintf(out, "%-5s %s\n      %s\n", it.Kind, it.Title, it.URL)
		}
		fmt.Fprintf(out, "%d new items cached for %q\n", len(items), topic)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chessmaster %s\n", version)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of lessons to list")
}

func writeCacheStats(w io.Writer, st *store.Stats) {
	fmt.Fprintf(w, "Cached items: %d (consumed %d, presented lessons %d)\n", st.Items, st.Consumed, st.Presented)
	fmt.Fprintf(w, "Seen URLs:    %d\n", st.SeenURLs)
	if len(st.ByKind) > 0 {
		fmt.Fprintf(w, "By kind:      %s\n", formatCounts(st.ByKind))
	}
	if len(st.ByTopic) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\nTOPIC\tITEMS")
		for _, k := range sortedKeys(st.ByTopic) {
			fmt.Fprintf(tw, "%s\t%d\n", k, st.ByTopic[k])
		}
		tw.Flush()
	}
}

func writeSessionStats(w io.Writer, sd usage.StatsData) {
	fmt.Fprintf(w, "\nSessions: %d\n", sd.Sessions)
	fmt.Fprintf(w, "All time: %s\n", usage.Summary(sd.Aggregate))
	if sd.LastSession != nil {
		fmt.Fprintf(w, "Last session (%s): %s\n",
			sd.LastSession.StartedAt.Local().Format("2006-01-02 15:04"), usage.Summary(sd.LastSession.Counters))
	}
}

func writeHistory(w io.Writer, entries []store.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No lessons presented yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tTOPIC\tTITLE\tSLIDES")
	for _, e := range entries {
		title := e.Title
		if e.Review {
			title += " (review)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.FinishedAt.Local().Format("2006-01-02 15:04"), e.Topic, title, e.SlidesShown)
	}
	tw.Flush()
}

func formatCounts(m map[string]int) string {
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
