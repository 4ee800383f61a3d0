package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimewatch/cmd/uptimectl/api"
)

var (
	apiURL string
	apiKey string
	client *api.Client
)

var rootCmd = &cobra.Command{
	Use:   "uptimectl",
	Short: "Manage monitors and read incidents from an uptimed server",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = api.New(apiURL, apiKey)
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultURL := os.Getenv("API_BASE")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "uptimed API URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "key", os.Getenv("UPTIME_API_KEY"), "API key (public for reads, admin for writes)")
}
