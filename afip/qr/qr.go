// Package qr builds the fiscal QR code printed on authorized invoices.
package qr

import (
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"github.com/alapierre/go-afip-client/afip/model"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

var logger = logrus.WithField("component", "afip.qr")

const (
	BaseURL = "https://www.afip.gob.ar/fe/qr/?p="

	// DefaultSize PNG side in pixels
	DefaultSize = 300
)

var digits = regexp.MustCompile(`^\d+$`)

// Payload content of the QR code, version 1.
type Payload struct {
	Version    int
	Date       time.Time
	Cuit       int64
	SalesPoint int
	Class      model.InvoiceClass
	Number     int64
	Amount     decimal.Decimal
	Currency   string          // "" -> PES
	Rate       decimal.Decimal // zero -> 1
	AuthType   string          // "" -> E (CAE)
	AuthCode   string

	RecipientDocType   model.DocType
	RecipientDocNumber string
}

// NewPayload payload for an invoice authorized with CAE.
func NewPayload(date time.Time, cuit int64, salesPoint int, class model.InvoiceClass, number int64, amount decimal.Decimal, cae string) Payload {
	return Payload{
		Version:    1,
		Date:       date,
		Cuit:       cuit,
		SalesPoint: salesPoint,
		Class:      class,
		Number:     number,
		Amount:     amount,
		AuthCode:   cae,
	}
}

// WithRecipient sets the recipient document; ignored later for consumidor final.
func (p Payload) WithRecipient(docType model.DocType, number string) Payload {
	p.RecipientDocType = docType
	p.RecipientDocNumber = strings.TrimSpace(number)
	return p
}

func (p Payload) hasRecipient() bool {
	if p.RecipientDocType == 0 || p.RecipientDocType == model.DocNoDoc {
		return false
	}
	return p.RecipientDocNumber != "" && p.RecipientDocNumber != "0"
}

// JSON compact payload with fields in the published order.
func (p Payload) JSON() ([]byte, error) {
	if p.Cuit == 0 || p.SalesPoint == 0 || p.Number == 0 {
		return nil, errors.New("cuit, sales point and number are required")
	}
	if p.Date.IsZero() {
		return nil, errors.New("date is required")
	}

	version := p.Version
	if version == 0 {
		version = 1
	}
	currency := p.Currency
	if currency == "" {
		currency = "PES"
	}
	rate := p.Rate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	authType := p.AuthType
	if authType == "" {
		authType = "E"
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("ver")
	e.Int(version)
	e.FieldStart("fecha")
	e.Str(p.Date.Format(time.DateOnly))
	e.FieldStart("cuit")
	e.Int64(p.Cuit)
	e.FieldStart("ptoVta")
	e.Int(p.SalesPoint)
	e.FieldStart("tipoCmp")
	e.Int(int(p.Class))
	e.FieldStart("nroCmp")
	e.Int64(p.Number)
	e.FieldStart("importe")
	e.Num(jx.Num(p.Amount.Round(2).String()))
	e.FieldStart("moneda")
	e.Str(currency)
	e.FieldStart("ctz")
	e.Num(jx.Num(rate.String()))

	if p.hasRecipient() {
		e.FieldStart("tipoDocRec")
		e.Int(int(p.RecipientDocType))
		e.FieldStart("nroDocRec")
		writeNumberOrString(&e, p.RecipientDocNumber)
	}

	e.FieldStart("tipoCodAut")
	e.Str(authType)
	e.FieldStart("codAut")
	writeNumberOrString(&e, p.AuthCode)
	e.ObjEnd()

	return e.Bytes(), nil
}

func writeNumberOrString(e *jx.Encoder, s string) {
	if digits.MatchString(s) {
		// CAE has 14 digits, past int53 but valid as a JSON number
		n := strings.TrimLeft(s, "0")
		if n == "" {
			n = "0"
		}
		e.Num(jx.Num(n))
		return
	}
	e.Str(s)
}

// URL verification address encoded in the QR code.
func (p Payload) URL() (string, error) {
	b, err := p.JSON()
	if err != nil {
		return "", err
	}
	return BaseURL + base64.RawURLEncoding.EncodeToString(b), nil
}

// PNG renders the URL as PNG, size in pixels (DefaultSize when <= 0).
func (p Payload) PNG(size int) ([]byte, error) {
	u, err := p.URL()
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultSize
	}
	logger.WithFields(logrus.Fields{"size": size, "url": u}).Debug("rendering QR")
	return qrcode.Encode(u, qrcode.Medium, size)
}
