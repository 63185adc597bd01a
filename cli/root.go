package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alapierre/go-afip-client/afip"
	"github.com/alapierre/go-afip-client/afip/config"
	"github.com/alapierre/go-afip-client/afip/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "afip",
	Short: "AFIP electronic invoicing client (WSAA + WSFEv1)",
	Long: `afip talks to the Argentinian tax authority web services: it obtains access
tickets from WSAA and authorizes invoices (CAE) through WSFEv1.

Configuration is read from the environment:
  AFIP_MODE      prod | homo (default homo)
  AFIP_PV        sales point
  AFIP_CUIT      issuer CUIT
  AFIP_CERT      certificate (PEM or DER)
  AFIP_KEY       private key
  AFIP_KEY_PASS  private key passphrase
  AFIP_SIGNER    native | openssl (default native)
  AFIP_OPENSSL   openssl binary, default from PATH
  AFIP_TAXPAYER  MONO | RI (default MONO)

Examples:
  # Check the service
  afip status

  # Next number for Factura C
  afip next --class C

  # Authorize a Factura B for a DNI recipient and save the QR
  afip authorize --class B --doc-type 96 --doc-number 30111222 --total 1210.00 --qr factura.png`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose || util.DebugEnabled() {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
	SilenceUsage: true,
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func newClient() (*afip.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	client, err := cfg.NewClient()
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
