package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kpkab/nested-ad-group-to-flat-db-group/config"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/syncer"
)

// Distinguished exit code for configuration errors against the directory and
// unexpected working-set state.
const exitConfigError = 99

var rootCmd = &cobra.Command{
	Use:   "ad-sync",
	Short: "Sync Entra ID group membership into a Databricks account",
	Long: `ad-sync resolves the transitive membership of configured Entra ID groups
into sub-groups, users and service principals, persists them as a working set,
and reconciles that working set against the Databricks account's identity
store with create-if-absent semantics.`,
	SilenceUsage: true,
}

// Execute runs the CLI and maps distinguished errors to the non-zero exit
// code the surrounding automation checks for.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, syncer.ErrTargetNotFound) || errors.Is(err, syncer.ErrUnexpectedWorkingSet) {
			os.Exit(exitConfigError)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultConfigPath, "Path to the agent configuration file")
	rootCmd.PersistentFlags().String("targets", config.DefaultTargetsPath, "Path to the sync-target JSON document")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("targets", rootCmd.PersistentFlags().Lookup("targets"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Secrets may come from the environment instead of the config file.
	viper.SetEnvPrefix("AD_SYNC")
	viper.BindEnv("client_secret")
	viper.BindEnv("account_token")
}
