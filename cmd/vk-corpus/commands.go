package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	config   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:          "vk-corpus",
		Short:        "Build a bilingual news corpus from VK wall posts",
		Long:         "vk-corpus fetches bilingual news posts from a VK community, splits them into aligned sentence pairs and exports them as tab-delimited files.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.config, "config", "", "path to config file (defaults are embedded)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(newCrawlCmd(flags))
	root.AddCommand(newRepairCmd(flags))
	root.AddCommand(newVersionCmd())
	return root
}

type crawlFlags struct {
	count       int
	incremental bool
	lastTotal   int
}

func newCrawlCmd(root *rootFlags) *cobra.Command {
	flags := &crawlFlags{}

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch posts and export parsed articles",
		Long: `Fetch posts and export parsed articles.

Without flags every available post is fetched. --count fetches the newest N
posts. --incremental fetches the posts published since the stored baseline;
--last-total supplies the baseline by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := modeFull
			switch {
			case cmd.Flags().Changed("count"):
				mode = modeRequest
			case cmd.Flags().Changed("last-total"):
				mode = modeIncremental
			case flags.incremental:
				mode = modeIncremental
			}
			if mode == modeRequest && flags.count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			if cmd.Flags().Changed("last-total") && flags.lastTotal < 0 {
				return fmt.Errorf("--last-total must not be negative")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, root.config, root.logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			var lastTotal *int
			if cmd.Flags().Changed("last-total") {
				lastTotal = &flags.lastTotal
			}
			return a.crawl(ctx, cmd.OutOrStdout(), mode, flags.count, lastTotal)
		},
	}

	cmd.Flags().IntVar(&flags.count, "count", 0, "fetch the newest N posts")
	cmd.Flags().BoolVar(&flags.incremental, "incremental", false, "fetch posts published since the stored baseline")
	cmd.Flags().IntVar(&flags.lastTotal, "last-total", 0, "result count of the previous run (implies --incremental)")
	cmd.MarkFlagsMutuallyExclusive("count", "incremental")
	cmd.MarkFlagsMutuallyExclusive("count", "last-total")
	return cmd
}

func newRepairCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Re-parse hand-corrected quarantine artifacts",
		Long: `Re-parse the post<N>.txt files in the quarantine directory.

Artifacts that now parse are exported and removed; the rest stay in place
for another round of corrections.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root.config, root.logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			failed, err := a.repair(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if failed > 0 {
				return errRepairsPending
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vk-corpus %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

var errRepairsPending = errors.New("some artifacts still fail to parse")
