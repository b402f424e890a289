package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kpkab/nested-ad-group-to-flat-db-group/account"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/auth"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/config"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/directory"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/logging"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/syncer"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/workingset"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one full sync pass",
	Long: `Execute one full sync pass: clear the working set, resolve every
configured target group from the directory, persist the partitioned
membership, then reconcile each group against the account.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("dry-run", false, "Resolve and persist the working set but skip all account mutations")
	viper.BindPFlag("dry-run", runCmd.Flags().Lookup("dry-run"))
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, targets, err := loadInputs()
	if err != nil {
		return err
	}

	if _, err := logging.Setup(cfg.LogDir); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logLevel := cfg.LogLevel
	if viper.GetBool("verbose") {
		logLevel = "debug"
	}
	logging.SetGlobalLogLevelFromString(logLevel)

	timeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second

	tokens, err := auth.NewClientCredentials(auth.Options{
		TokenURL:       cfg.Directory.TokenURL,
		ClientID:       cfg.Directory.ClientID,
		ClientSecret:   cfg.Directory.ClientSecret,
		PrivateKeyFile: cfg.Directory.PrivateKeyFile,
		Scope:          cfg.Directory.Scope,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize directory credentials: %w", err)
	}

	store, err := workingset.NewStore(cfg.WorkingSetDir)
	if err != nil {
		return err
	}

	dir := directory.NewClient(cfg.Directory.GraphURL, tokens, timeout)
	acct := account.NewClient(cfg.Account.SCIMURL, cfg.Account.Token, timeout)

	coordinator := syncer.NewCoordinator(dir, acct, store, cfg.Account.AccountID, viper.GetBool("dry-run"))
	return coordinator.Run(targets)
}

// loadInputs reads the agent config and target document, applying environment
// overrides for secrets.
func loadInputs() (*config.Config, *config.Targets, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, nil, err
	}
	if secret := viper.GetString("client_secret"); secret != "" {
		cfg.Directory.ClientSecret = secret
	}
	if token := viper.GetString("account_token"); token != "" {
		cfg.Account.Token = token
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	targets, err := config.LoadTargets(viper.GetString("targets"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, targets, nil
}
