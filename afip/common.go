package afip

import (
	"context"
	"fmt"
	"regexp"
	"time"
	_ "time/tzdata"

	"github.com/alapierre/go-afip-client/afip/tax"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "afip")

// DefaultService WSAA service name of the electronic invoicing web service.
const DefaultService = "wsfe"

var (
	// ErrInvalidRequest input rejected locally, before any network call
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidCuit    = errors.New("invalid CUIT")
)

type forceAuthKey struct{}

// ContextWithForceAuth makes the ticket cache fetch a new ticket regardless of the cached one.
func ContextWithForceAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceAuthKey{}, true)
}

func IsForceAuth(ctx context.Context) bool {
	v, ok := ctx.Value(forceAuthKey{}).(bool)
	return ok && v
}

// Credentials identity of the issuer. Immutable for the lifetime of a Client.
type Credentials struct {
	Env        Environment
	SalesPoint int
	Cuit       int64
	// puste -> brak kontroli rodzaju faktury względem reżimu
	Taxpayer tax.TaxpayerType
	// WSAA service name, DefaultService when empty
	Service string
}

func (c Credentials) Validate() error {
	if err := ValidateCuit(c.Cuit); err != nil {
		return err
	}
	if c.SalesPoint < 1 || c.SalesPoint > 99998 {
		return fmt.Errorf("%w: sales point %d out of range 1..99998", ErrInvalidRequest, c.SalesPoint)
	}
	return nil
}

var cuitWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}
var digitsRe = regexp.MustCompile(`^\d+$`)

// ValidateCuit checks the 11 digit length and the modulo 11 check digit.
func ValidateCuit(cuit int64) error {
	s := fmt.Sprintf("%d", cuit)
	if len(s) != 11 || !digitsRe.MatchString(s) {
		return fmt.Errorf("%w: %d must have 11 digits", ErrInvalidCuit, cuit)
	}

	sum := 0
	for i, w := range cuitWeights {
		sum += int(s[i]-'0') * w
	}
	check := 11 - sum%11
	switch check {
	case 11:
		check = 0
	case 10:
		check = 9
	}
	if int(s[10]-'0') != check {
		return fmt.Errorf("%w: %d check digit mismatch", ErrInvalidCuit, cuit)
	}
	return nil
}

var argentina = loadArgentina()

func loadArgentina() *time.Location {
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	if err != nil {
		return time.FixedZone("ART", -3*60*60)
	}
	return loc
}
