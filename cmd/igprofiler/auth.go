package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"igprofiler/pkg/credentials"
	"igprofiler/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored API tokens",
	Long: `Manage the Apify and Anthropic API tokens igprofiler uses.

Tokens are stored in, in order of preference:
  - the system keychain (when available)
  - an AES-GCM encrypted file in the igprofiler config directory
  - environment variables (read only)

Tokens in the configuration file or environment take precedence over
stored ones.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set <apify|anthropic>",
	Short: "Store a token",
	Example: `  # Prompt for the Apify token
  igprofiler auth set apify`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: credentials.Services,
	RunE:      runAuthSet,
}

var authRemoveCmd = &cobra.Command{
	Use:       "remove <apify|anthropic>",
	Short:     "Remove a stored token",
	Args:      cobra.ExactArgs(1),
	ValidArgs: credentials.Services,
	RunE:      runAuthRemove,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tokens",
	RunE:  runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authRemoveCmd)
	authCmd.AddCommand(authListCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	service := args[0]
	if !credentials.ValidService(service) {
		return fmt.Errorf("unknown service %q (expected one of %v)", service, credentials.Services)
	}

	manager, err := credentials.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	value, err := credentials.ReadSecret(fmt.Sprintf("%s token: ", service))
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	store, err := manager.Set(service, value)
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Saved %s token (%s) to %s", service, credentials.Mask(value), store))
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	manager, err := credentials.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	ui.PrintSuccess("Removed " + args[0] + " token")
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := credentials.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	tokens := manager.List()
	if len(tokens) == 0 {
		ui.PrintWarning("No stored tokens. Add one with 'igprofiler auth set <service>'")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tTOKEN\tSTORE\tUPDATED")
	for _, t := range tokens {
		updated := "-"
		if !t.LastModified.IsZero() {
			updated = t.LastModified.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Service, credentials.Mask(t.Value), t.Source, updated)
	}
	return w.Flush()
}
