package cli

import (
	"fmt"
	"time"

	"github.com/alapierre/go-afip-client/afip"
	"github.com/spf13/cobra"
)

var forceLogin bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain a WSAA access ticket",
	Long: `Signs a login ticket request and calls WSAA loginCms.
Prints the ticket expiration; token and sign are never printed.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check WSFE availability (FEDummy)",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(statusCmd)

	loginCmd.Flags().BoolVar(&forceLogin, "force", false, "Ignore a cached ticket")
}

func runLogin(cmd *cobra.Command, args []string) error {
	client, cfg, err := newClient()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if forceLogin {
		ctx = afip.ContextWithForceAuth(ctx)
	}

	printVerbose("Logging in to %s (%s)\n", cfg.Mode.WsaaURL(), cfg.Service)
	ticket, err := client.Ticket(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ticket valid until %s\n", ticket.ExpiresAt.Local().Format(time.RFC3339))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	st, err := client.ServerStatus(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "AppServer:  %s\n", st.AppServer)
	fmt.Fprintf(out, "DbServer:   %s\n", st.DbServer)
	fmt.Fprintf(out, "AuthServer: %s\n", st.AuthServer)
	if !st.OK() {
		return fmt.Errorf("WSFE is not fully available")
	}
	return nil
}
