package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
)

const defaultServerAddress = "localhost:50051"

func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "dispatchengine",
		Short: "Run jobs on a fixed pool of workers",
		Long: `DispatchEngine runs submitted jobs on a fixed set of workers. A single
scheduler hands each job to an idle worker or queues it until one frees up.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config-file", "", "YAML config file")

	root.AddCommand(
		newServeCommand(v, &cfgFile),
		newDemoCommand(),
		newSubmitCommand(),
		newStatusCommand(),
		newStatsCommand(),
	)
	return root
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
