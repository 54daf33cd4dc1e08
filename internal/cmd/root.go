package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"voice-diary-go/internal/app"
	"voice-diary-go/internal/config"
	"voice-diary-go/internal/logger"
)

// Version is set at build time via ldflags.
var Version = "dev"

type rootOptions struct {
	configPath string
}

// NewRootCmd creates the root command for the diaryctl CLI
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "diaryctl",
		Short:         "Voice diary maintenance tool",
		Long:          "diaryctl inspects, processes and exports voice diary records without the HTTP server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "optional config file (.env, yaml or json)")

	rootCmd.AddCommand(
		newShowCmd(opts),
		newSaveCmd(opts),
		newProcessCmd(opts),
		newPurgeCmd(opts),
		newRankingCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// open loads configuration and builds the pipeline. Logs go to stderr so
// command output stays machine readable.
func (o *rootOptions) open(cmd *cobra.Command) (*app.App, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), cfg, logger.NewWithWriter(cmd.ErrOrStderr()))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "diaryctl version %s\n", Version)
		},
	}
}
