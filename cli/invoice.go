package cli

import (
	"fmt"
	"os"

	"github.com/alapierre/go-afip-client/afip/model"
	"github.com/alapierre/go-afip-client/afip/qr"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	className string
	docType   int
	docNumber string
	total     string
	concept   int
	qrFile    string
	number    int64
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next invoice number for a class",
	Args:  cobra.NoArgs,
	RunE:  runNext,
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Authorize an invoice and print the CAE",
	Long: `Requests the next number from WSFE and authorizes a single invoice under it.

Two concurrent authorizations on the same sales point and class may race for the
same number; WSFE then rejects one of them. Use "consult" to check a number after
an ambiguous failure.

Examples:
  # Factura C for consumidor final
  afip authorize --class C --total 1500

  # Factura B, services, DNI recipient, with QR
  afip authorize --class B --concept 2 --doc-type 96 --doc-number 30111222 --total 1210 --qr qr.png`,
	Args: cobra.NoArgs,
	RunE: runAuthorize,
}

var consultCmd = &cobra.Command{
	Use:   "consult",
	Short: "Show an authorized invoice (FECompConsultar)",
	Args:  cobra.NoArgs,
	RunE:  runConsult,
}

func init() {
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(authorizeCmd)
	rootCmd.AddCommand(consultCmd)

	for _, c := range []*cobra.Command{nextCmd, authorizeCmd, consultCmd} {
		c.Flags().StringVar(&className, "class", "C", "Invoice class: B or C")
	}

	authorizeCmd.Flags().IntVar(&docType, "doc-type", int(model.DocNoDoc), "Recipient document type (80 CUIT, 86 CUIL, 96 DNI, 99 none)")
	authorizeCmd.Flags().StringVar(&docNumber, "doc-number", "0", "Recipient document number")
	authorizeCmd.Flags().StringVar(&total, "total", "", "Invoice total, VAT included")
	authorizeCmd.Flags().IntVar(&concept, "concept", int(model.ConceptProducts), "1 products, 2 services, 3 both")
	authorizeCmd.Flags().StringVar(&qrFile, "qr", "", "Write the fiscal QR code as PNG to this file")
	_ = authorizeCmd.MarkFlagRequired("total")

	consultCmd.Flags().Int64Var(&number, "number", 0, "Invoice number")
	_ = consultCmd.MarkFlagRequired("number")
}

func invoiceClass() (model.InvoiceClass, error) {
	var c model.InvoiceClass
	err := c.UnmarshalText([]byte(className))
	return c, err
}

func runNext(cmd *cobra.Command, args []string) error {
	class, err := invoiceClass()
	if err != nil {
		return err
	}
	client, _, err := newClient()
	if err != nil {
		return err
	}

	n, err := client.NextInvoiceNumber(cmd.Context(), class)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}

func runAuthorize(cmd *cobra.Command, args []string) error {
	class, err := invoiceClass()
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return fmt.Errorf("invalid --total %q: %w", total, err)
	}

	client, cfg, err := newClient()
	if err != nil {
		return err
	}

	req := model.InvoiceRequest{
		Class:              class,
		Concept:            model.Concept(concept),
		RecipientDocType:   model.DocType(docType),
		RecipientDocNumber: docNumber,
		Total:              amount,
	}

	printVerbose("Authorizing %s for %s on sales point %d\n", class, amount.StringFixed(2), cfg.SalesPoint)
	res, err := client.AuthorizeInvoice(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Number:     %d\n", res.InvoiceNumber)
	fmt.Fprintf(out, "CAE:        %s\n", res.AuthorizationCode)
	fmt.Fprintf(out, "CAE expiry: %s\n", res.AuthorizationExpiry)

	if qrFile == "" {
		return nil
	}

	p := qr.NewPayload(res.IssueDate, cfg.Cuit, cfg.SalesPoint, class, res.InvoiceNumber, amount, res.AuthorizationCode).
		WithRecipient(req.RecipientDocType, req.RecipientDocNumber)
	data, err := p.PNG(qr.DefaultSize)
	if err != nil {
		return err
	}
	if err := os.WriteFile(qrFile, data, 0o644); err != nil {
		return err
	}
	printVerbose("QR written to %s\n", qrFile)
	return nil
}

func runConsult(cmd *cobra.Command, args []string) error {
	class, err := invoiceClass()
	if err != nil {
		return err
	}
	client, _, err := newClient()
	if err != nil {
		return err
	}

	rec, err := client.GetInvoice(cmd.Context(), class, number)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %04d-%08d  %s\n", rec.Class, rec.SalesPoint, rec.Number, rec.IssueDate)
	fmt.Fprintf(out, "Recipient:  %d %s\n", rec.DocType, rec.DocNumber)
	fmt.Fprintf(out, "Total:      %s (net %s, VAT %s)\n", rec.Total.StringFixed(2), rec.Net.StringFixed(2), rec.Tax.StringFixed(2))
	fmt.Fprintf(out, "Result:     %s\n", rec.Result)
	fmt.Fprintf(out, "CAE:        %s (expires %s)\n", rec.AuthorizationCode, rec.AuthorizationExpiry)
	return nil
}
