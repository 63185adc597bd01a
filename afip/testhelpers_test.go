package afip

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alapierre/go-afip-client/afip/tax"
	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

const testCuit = 20123456786

var testNow = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

type fakeSigner struct {
	calls atomic.Int32
}

func (s *fakeSigner) Sign(_ context.Context, doc []byte) ([]byte, error) {
	s.calls.Add(1)
	return append([]byte("signed:"), doc...), nil
}

func loginResponse(token, sign, expiration string) string {
	ta := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<loginTicketResponse version="1.0"><header><source>CN=wsaahomo, O=AFIP, C=AR</source><destination>SERIALNUMBER=CUIT 20123456786</destination><uniqueId>1760440000</uniqueId><generationTime>2026-10-14T11:55:00.000-03:00</generationTime><expirationTime>%s</expirationTime></header><credentials><token>%s</token><sign>%s</sign></credentials></loginTicketResponse>`,
		expiration, token, sign)

	return `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body><loginCmsResponse xmlns="http://wsaa.view.sua.dvadac.desein.afip.gov"><loginCmsReturn>` +
		html.EscapeString(ta) +
		`</loginCmsReturn></loginCmsResponse></soapenv:Body></soapenv:Envelope>`
}

func soapBody(inner string) string {
	return `<?xml version="1.0" encoding="utf-8"?><soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><soap:Body>` +
		inner + `</soap:Body></soap:Envelope>`
}

func lastAuthorizedBody(last int) string {
	return soapBody(fmt.Sprintf(`<FECompUltimoAutorizadoResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECompUltimoAutorizadoResult><PtoVta>1</PtoVta><CbteTipo>11</CbteTipo><CbteNro>%d</CbteNro></FECompUltimoAutorizadoResult></FECompUltimoAutorizadoResponse>`, last))
}

func caeBody(detail string) string {
	return soapBody(`<FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECAESolicitarResult><FeCabResp><Cuit>20123456786</Cuit><PtoVta>1</PtoVta><CbteTipo>11</CbteTipo><FchProceso>20261014120000</FchProceso><CantReg>1</CantReg><Resultado>A</Resultado><Reproceso>N</Reproceso></FeCabResp><FeDetResp><FECAEDetResponse>` +
		detail + `</FECAEDetResponse></FeDetResp></FECAESolicitarResult></FECAESolicitarResponse>`)
}

type recordedCall struct {
	action string
	doc    *etree.Document
}

// fakeWsfe answers by SOAPAction and records every request.
type fakeWsfe struct {
	t         *testing.T
	mu        sync.Mutex
	responses map[string]string
	status    int
	calls     []recordedCall
}

func (f *fakeWsfe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		http.Error(w, "bad request XML", http.StatusBadRequest)
		return
	}

	action := r.Header.Get("SOAPAction")
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{action: action, doc: doc})
	resp, ok := f.responses[action]
	status := f.status
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, _ = io.WriteString(w, resp)
}

func (f *fakeWsfe) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeWsfe) last(action string) *etree.Document {
	calls := f.recorded()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].action == wsfeNS+action {
			return calls[i].doc
		}
	}
	return nil
}

type testEnv struct {
	client    *Client
	signer    *fakeSigner
	wsfe      *fakeWsfe
	wsaaCalls *atomic.Int32
}

func newTestEnv(t *testing.T, taxpayer tax.TaxpayerType, responses map[string]string) *testEnv {
	t.Helper()
	return newTestEnvAt(t, taxpayer, responses, testNow)
}

func newTestEnvAt(t *testing.T, taxpayer tax.TaxpayerType, responses map[string]string, now time.Time) *testEnv {
	t.Helper()

	var wsaaCalls atomic.Int32
	wsaa := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsaaCalls.Add(1)
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		_, _ = io.WriteString(w, loginResponse("TOKEN", "SIGN", "2026-10-15T03:00:00.000-03:00"))
	}))
	t.Cleanup(wsaa.Close)

	fe := &fakeWsfe{t: t, responses: responses}
	feSrv := httptest.NewServer(fe)
	t.Cleanup(feSrv.Close)

	signer := &fakeSigner{}
	creds := Credentials{Env: Homo, SalesPoint: 1, Cuit: testCuit, Taxpayer: taxpayer}

	c, err := NewClient(creds, signer,
		withEndpoints(wsaa.URL, feSrv.URL),
		withNow(func() time.Time { return now }),
	)
	require.NoError(t, err)

	return &testEnv{client: c, signer: signer, wsfe: fe, wsaaCalls: &wsaaCalls}
}

func text(doc *etree.Document, path string) string {
	el := doc.FindElement(path)
	if el == nil {
		return ""
	}
	return el.Text()
}
