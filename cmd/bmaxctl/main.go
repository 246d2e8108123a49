// Command bmaxctl is the operator tool for the search service: it explains
// bmax queries offline, bulk loads a local index, imports synonym sets,
// publishes documents to Kafka and load tests a running searcher.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/logger"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "bmaxctl",
	Short:         "Operate a bmax search deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Setup(logLevel, "text")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(newExplainCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newSynonymsCmd())
	rootCmd.AddCommand(newPublishCmd())
	rootCmd.AddCommand(newLoadTestCmd())
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
