package api

import (
	"fmt"
	"strings"
)

const (
	// MaxTransportBody ile znaków body trafia do TransportError
	MaxTransportBody = 2000
	// MaxRejectedBody ile znaków surowej odpowiedzi trafia do RejectedError bez obserwacji
	MaxRejectedBody = 800
)

// SigningError signing backend is unavailable or failed. Output holds the backend diagnostics.
type SigningError struct {
	Backend string
	Message string
	Output  string
	Err     error
}

func (e *SigningError) Error() string {
	msg := fmt.Sprintf("signing (%s): %s", e.Backend, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// TransportError HTTP status >= 400 or network level failure.
type TransportError struct {
	URL        string
	StatusCode int // 0 gdy nie dostaliśmy odpowiedzi
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transport %s: HTTP %d\n%s", e.URL, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError malformed or incomplete response.
type ProtocolError struct {
	Operation string
	Message   string
	Body      string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// Observation Code/Msg pair returned by WSFE (Obs, Err).
type Observation struct {
	Code string
	Msg  string
}

func (o Observation) String() string {
	return strings.Trim(fmt.Sprintf("%s: %s", o.Code, o.Msg), ": ")
}

// RejectedError well formed negative outcome from the billing service.
type RejectedError struct {
	Result       string
	Observations []Observation
	Body         string
}

func (e *RejectedError) Error() string {
	extra := Truncate(e.Body, MaxRejectedBody)
	if len(e.Observations) > 0 {
		parts := make([]string, 0, len(e.Observations))
		for _, o := range e.Observations {
			parts = append(parts, o.String())
		}
		extra = strings.Join(parts, " | ")
	}
	return fmt.Sprintf("WSFE rejected invoice, Resultado=%s. %s", e.Result, extra)
}

// UnsupportedInvoiceClassError invoice class the calculator or the taxpayer regime cannot handle.
type UnsupportedInvoiceClassError struct {
	Class  int
	Reason string
}

func (e *UnsupportedInvoiceClassError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported invoice class %d: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("unsupported invoice class %d", e.Class)
}

// Truncate obcina s do max znaków (runy), bez dzielenia znaków wielobajtowych.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
