package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceClass fiscal document type (CbteTipo).
type InvoiceClass int

const (
	ClassB InvoiceClass = 6
	ClassC InvoiceClass = 11
)

func (c InvoiceClass) String() string {
	switch c {
	case ClassB:
		return "Factura B"
	case ClassC:
		return "Factura C"
	}
	return fmt.Sprintf("CbteTipo %d", int(c))
}

// UnmarshalText accepts "B", "C" or the numeric CbteTipo.
func (c *InvoiceClass) UnmarshalText(text []byte) error {
	switch string(text) {
	case "B", "b", "6":
		*c = ClassB
	case "C", "c", "11":
		*c = ClassC
	default:
		return fmt.Errorf("invalid invoice class: %q (allowed: B, C)", string(text))
	}
	return nil
}

// DocType recipient document type (DocTipo).
type DocType int

const (
	DocCUIT  DocType = 80
	DocCUIL  DocType = 86
	DocDNI   DocType = 96
	DocNoDoc DocType = 99 // consumidor final
)

// Concept 1 produkty, 2 usługi, 3 oba
type Concept int

const (
	ConceptProducts Concept = 1
	ConceptServices Concept = 2
	ConceptBoth     Concept = 3
)

type Item struct {
	Name      string
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

type InvoiceRequest struct {
	Class              InvoiceClass
	Concept            Concept // zero -> ConceptProducts
	RecipientDocType   DocType
	RecipientDocNumber string
	Total              decimal.Decimal
	Items              []Item

	// only for ConceptServices / ConceptBoth, zero -> issue date
	ServiceFrom time.Time
	ServiceTo   time.Time
	PaymentDue  time.Time
}

// ItemsTotal suma Subtotal wszystkich pozycji
func (r InvoiceRequest) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range r.Items {
		sum = sum.Add(it.Subtotal)
	}
	return sum
}

// TaxBreakdown net/tax split of a total. Net.Add(Tax) equals the rounded total.
type TaxBreakdown struct {
	Net decimal.Decimal
	Tax decimal.Decimal
}

// InvoiceResult outcome of a successful authorization.
type InvoiceResult struct {
	InvoiceNumber       int64
	AuthorizationCode   string // CAE
	AuthorizationExpiry string // CAEFchVto, yyyymmdd
	// CbteFch sent with the request, in Argentina time
	IssueDate time.Time
}

// InvoiceRecord authorized invoice as returned by FECompConsultar.
type InvoiceRecord struct {
	SalesPoint          int
	Class               InvoiceClass
	Number              int64
	DocType             DocType
	DocNumber           string
	IssueDate           string
	Total               decimal.Decimal
	Net                 decimal.Decimal
	Tax                 decimal.Decimal
	AuthorizationCode   string
	AuthorizationExpiry string
	Result              string
}

// ServerStatus FEDummy response.
type ServerStatus struct {
	AppServer  string
	DbServer   string
	AuthServer string
}

// OK true when all three components report "OK".
func (s ServerStatus) OK() bool {
	return s.AppServer == "OK" && s.DbServer == "OK" && s.AuthServer == "OK"
}
