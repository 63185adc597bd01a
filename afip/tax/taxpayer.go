package tax

import (
	"fmt"
	"strings"

	"github.com/alapierre/go-afip-client/afip/api"
	"github.com/alapierre/go-afip-client/afip/model"
)

// TaxpayerType fiscal regime of the issuer.
type TaxpayerType string

const (
	Monotributo          TaxpayerType = "MONO"
	ResponsableInscripto TaxpayerType = "RI"
)

// NormalizeTaxpayerType unknown or empty values fall back to Monotributo.
func NormalizeTaxpayerType(v string) TaxpayerType {
	switch TaxpayerType(strings.ToUpper(strings.TrimSpace(v))) {
	case ResponsableInscripto:
		return ResponsableInscripto
	default:
		return Monotributo
	}
}

func (t *TaxpayerType) UnmarshalText(text []byte) error {
	*t = NormalizeTaxpayerType(string(text))
	return nil
}

func (t TaxpayerType) Label() string {
	if t == ResponsableInscripto {
		return "Responsable Inscripto"
	}
	return "Monotributo"
}

func AllowedClasses(t TaxpayerType) []model.InvoiceClass {
	if NormalizeTaxpayerType(string(t)) == ResponsableInscripto {
		return []model.InvoiceClass{model.ClassB}
	}
	return []model.InvoiceClass{model.ClassC}
}

func DefaultClass(t TaxpayerType) model.InvoiceClass {
	return AllowedClasses(t)[0]
}

func IsClassAllowed(t TaxpayerType, class model.InvoiceClass) bool {
	for _, c := range AllowedClasses(t) {
		if c == class {
			return true
		}
	}
	return false
}

// CheckClass returns *api.UnsupportedInvoiceClassError when class is not allowed for t.
func CheckClass(t TaxpayerType, class model.InvoiceClass) error {
	if IsClassAllowed(t, class) {
		return nil
	}
	t = NormalizeTaxpayerType(string(t))
	return &api.UnsupportedInvoiceClassError{
		Class:  int(class),
		Reason: fmt.Sprintf("%s not allowed for %s, only %s", class, t.Label(), DefaultClass(t)),
	}
}
