package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and target document without calling any API",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, targets, err := loadInputs()
	if err != nil {
		return err
	}

	fmt.Println("Configuration OK")
	fmt.Printf("  directory token endpoint: %s\n", cfg.Directory.TokenURL)
	fmt.Printf("  directory API:            %s\n", cfg.Directory.GraphURL)
	fmt.Printf("  account SCIM API:         %s\n", cfg.Account.SCIMURL)
	fmt.Printf("  working set directory:    %s\n", cfg.WorkingSetDir)

	if targets.Empty() {
		fmt.Println("Target document names nothing to sync")
		return nil
	}
	if len(targets.GroupIDs) > 0 {
		fmt.Printf("  group_ids:   %s\n", strings.Join(targets.GroupIDs, ", "))
	}
	if len(targets.GroupNames) > 0 {
		fmt.Printf("  group_names: %s\n", strings.Join(targets.GroupNames, ", "))
	}
	if len(targets.Users) > 0 {
		fmt.Printf("  users:       %s\n", strings.Join(targets.Users, ", "))
	}
	return nil
}
