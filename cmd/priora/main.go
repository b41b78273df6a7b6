package main

import (
	"fmt"
	"os"

	"github.com/fentz26/priora/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "priora",
	Short: "priora - task priority and time estimation engine",
	Long: `priora ranks academic tasks with a weighted multi-criteria score, resolves
their difficulty and estimates how long each subtask will take from the
user's own completion history.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Setup(viper.GetViper(), cfgFile)
	},
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	cfgFile  string
	apiAddr  string
	apiToken string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.ConfigFile()+")")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7480", "API server address")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("PRIORA_TOKEN"), "bearer token for the API server")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(priorityCmd)
	rootCmd.AddCommand(difficultyCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(predictBatchCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(accuracyCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(analysesCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
