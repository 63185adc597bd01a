// Package tax derives net / VAT amounts for the supported invoice classes.
package tax

import (
	"github.com/alapierre/go-afip-client/afip/api"
	"github.com/alapierre/go-afip-client/afip/model"
	"github.com/shopspring/decimal"
)

// VatRateID AlicIva Id for 21%.
const VatRateID = 5

var (
	vatRate    = decimal.RequireFromString("0.21")
	vatDivisor = decimal.NewFromInt(1).Add(vatRate)
)

// VatBlock single AlicIva entry emitted for ClassB.
type VatBlock struct {
	ID     int
	Base   decimal.Decimal
	Amount decimal.Decimal
}

// Breakdown computes the net / tax split of total for class.
// ClassB prices are VAT inclusive (21%); any rounding residue is absorbed into the net amount.
// total is rounded half away from zero to 2 places first (100.005 -> 100.01);
// Client.AuthorizeInvoice rejects totals with more than 2 decimal places.
func Breakdown(total decimal.Decimal, class model.InvoiceClass) (model.TaxBreakdown, error) {
	total = total.Round(2)

	switch class {
	case model.ClassC:
		// monotributo: bez IVA
		return model.TaxBreakdown{Net: total, Tax: decimal.Zero}, nil

	case model.ClassB:
		net := total.Div(vatDivisor).Round(2)
		vat := total.Sub(net).Round(2)

		// korekta zaokrąglenia, żeby net + vat == total co do grosza
		diff := total.Sub(net.Add(vat)).Round(2)
		if !diff.IsZero() {
			net = net.Add(diff).Round(2)
		}
		return model.TaxBreakdown{Net: net, Tax: vat}, nil
	}

	return model.TaxBreakdown{}, &api.UnsupportedInvoiceClassError{Class: int(class)}
}

// VatBlocks returns the AlicIva entries for class; nil for ClassC.
func VatBlocks(b model.TaxBreakdown, class model.InvoiceClass) []VatBlock {
	if class != model.ClassB {
		return nil
	}
	return []VatBlock{{ID: VatRateID, Base: b.Net, Amount: b.Tax}}
}
