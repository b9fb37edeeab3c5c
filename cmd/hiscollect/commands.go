package main

import (
	"github.com/spf13/cobra"

	"HisCollect/pkg/config"
)

var (
	configPath string

	// run flags
	market    string
	startDay  string
	endDay    string
	stockIDs  []string
	brokerIDs []string
	method    string
	asFrame   bool
	limit     int

	// load flags
	batchSize   int
	skipInvalid bool

	rootCmd = &cobra.Command{
		Use:           "hiscollect",
		Short:         "Collect and rank daily market facts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run one cascading collection and print items or the wide table as JSON",
		RunE:  runCollect, // Defined in cmd_run.go
	}

	loadCmd = &cobra.Command{
		Use:   "load [file.jsonl]",
		Short: "Upsert JSON-lines fact envelopes into the fact store",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoad, // Defined in cmd_load.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (defaults only when empty)")

	runCmd.Flags().StringVar(&market, "market", "twse", "market option (twse or otc)")
	runCmd.Flags().StringVar(&startDay, "start", "", "first day, YYYYMMDD")
	runCmd.Flags().StringVar(&endDay, "end", "", "last day, YYYYMMDD")
	runCmd.Flags().StringSliceVar(&stockIDs, "stocks", nil, "stock ids")
	runCmd.Flags().StringSliceVar(&brokerIDs, "brokers", nil, "broker ids")
	runCmd.Flags().StringVar(&method, "method", "explicit", "seed method (list or explicit)")
	runCmd.Flags().BoolVar(&asFrame, "frame", false, "print the assembled wide table instead of raw items")
	runCmd.Flags().IntVar(&limit, "limit", 10, "top-K per ranking group")
	_ = runCmd.MarkFlagRequired("start")
	_ = runCmd.MarkFlagRequired("end")

	loadCmd.Flags().IntVar(&batchSize, "batch", 500, "facts per upsert batch")
	loadCmd.Flags().BoolVar(&skipInvalid, "skip-invalid", false, "skip malformed lines instead of failing")

	rootCmd.AddCommand(runCmd, loadCmd)
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithEnv(configPath)
}
