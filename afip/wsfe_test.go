package afip

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alapierre/go-afip-client/afip/api"
	"github.com/alapierre/go-afip-client/afip/model"
	"github.com/alapierre/go-afip-client/afip/qr"
	"github.com/alapierre/go-afip-client/afip/tax"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	approvedDetail = `<Concepto>1</Concepto><DocTipo>99</DocTipo><DocNro>0</DocNro><CbteDesde>55</CbteDesde><CbteHasta>55</CbteHasta><CbteFch>20261014</CbteFch><Resultado>A</Resultado><CAE>12345678901234</CAE><CAEFchVto>20301231</CAEFchVto>`
	rejectedDetail = `<Concepto>1</Concepto><DocTipo>80</DocTipo><DocNro>20111111112</DocNro><CbteDesde>55</CbteDesde><CbteHasta>55</CbteHasta><CbteFch>20261014</CbteFch><Resultado>R</Resultado><CAE></CAE><CAEFchVto></CAEFchVto><Observaciones><Obs><Code>10015</Code><Msg>CUIT invalido</Msg></Obs></Observaciones>`
	incompleteDetail = `<Concepto>1</Concepto><DocTipo>99</DocTipo><DocNro>0</DocNro><CbteDesde>55</CbteDesde><CbteHasta>55</CbteHasta><CbteFch>20261014</CbteFch><Resultado>A</Resultado><CAE>12345678901234</CAE>`
)

func authorizeResponses(detail string) map[string]string {
	return map[string]string{
		wsfeNS + opLastAuthorized: lastAuthorizedBody(54),
		wsfeNS + opAuthorize:      caeBody(detail),
	}
}

func classCRequest(total string) model.InvoiceRequest {
	return model.InvoiceRequest{
		Class:            model.ClassC,
		RecipientDocType: model.DocNoDoc,
		Total:            decimal.RequireFromString(total),
	}
}

func TestAuthorizeInvoice_Approved(t *testing.T) {
	env := newTestEnv(t, tax.Monotributo, authorizeResponses(approvedDetail))

	res, err := env.client.AuthorizeInvoice(context.Background(), classCRequest("121"))
	require.NoError(t, err)

	assert.EqualValues(t, 55, res.InvoiceNumber)
	assert.Equal(t, "12345678901234", res.AuthorizationCode)
	assert.Equal(t, "20301231", res.AuthorizationExpiry)
	assert.Equal(t, "20261014", res.IssueDate.Format(wsfeDateLayout))

	req := env.wsfe.last(opAuthorize)
	require.NotNil(t, req)
	assert.Equal(t, "TOKEN", text(req, "//Auth/Token"))
	assert.Equal(t, "SIGN", text(req, "//Auth/Sign"))
	assert.Equal(t, "20123456786", text(req, "//Auth/Cuit"))
	assert.Equal(t, "1", text(req, "//FeCabReq/CantReg"))
	assert.Equal(t, "1", text(req, "//FeCabReq/PtoVta"))
	assert.Equal(t, "11", text(req, "//FeCabReq/CbteTipo"))

	det := "//FeDetReq/FECAEDetRequest/"
	assert.Equal(t, "1", text(req, det+"Concepto"))
	assert.Equal(t, "99", text(req, det+"DocTipo"))
	assert.Equal(t, "0", text(req, det+"DocNro"))
	assert.Equal(t, "55", text(req, det+"CbteDesde"))
	assert.Equal(t, "55", text(req, det+"CbteHasta"))
	assert.Equal(t, "20261014", text(req, det+"CbteFch"))
	assert.Equal(t, "121.00", text(req, det+"ImpTotal"))
	assert.Equal(t, "121.00", text(req, det+"ImpNeto"))
	assert.Equal(t, "0.00", text(req, det+"ImpIVA"))
	assert.Equal(t, "0.00", text(req, det+"ImpTotConc"))
	assert.Equal(t, "PES", text(req, det+"MonId"))
	assert.Equal(t, "1.0000", text(req, det+"MonCotiz"))
	assert.Nil(t, req.FindElement("//Iva"))
	assert.Nil(t, req.FindElement("//FchServDesde"))

	// one login for both calls
	assert.EqualValues(t, 1, env.signer.calls.Load())
	assert.EqualValues(t, 1, env.wsaaCalls.Load())
}

func TestAuthorizeInvoice_ClassBVatBlock(t *testing.T) {
	env := newTestEnv(t, tax.ResponsableInscripto, authorizeResponses(approvedDetail))

	_, err := env.client.AuthorizeInvoice(context.Background(), model.InvoiceRequest{
		Class:              model.ClassB,
		RecipientDocType:   model.DocDNI,
		RecipientDocNumber: "30111222",
		Total:              decimal.RequireFromString("121.00"),
	})
	require.NoError(t, err)

	req := env.wsfe.last(opAuthorize)
	require.NotNil(t, req)
	assert.Equal(t, "6", text(req, "//FeCabReq/CbteTipo"))
	assert.Equal(t, "96", text(req, "//FECAEDetRequest/DocTipo"))
	assert.Equal(t, "30111222", text(req, "//FECAEDetRequest/DocNro"))
	assert.Equal(t, "100.00", text(req, "//FECAEDetRequest/ImpNeto"))
	assert.Equal(t, "21.00", text(req, "//FECAEDetRequest/ImpIVA"))
	assert.Equal(t, "5", text(req, "//Iva/AlicIva/Id"))
	assert.Equal(t, "100.00", text(req, "//Iva/AlicIva/BaseImp"))
	assert.Equal(t, "21.00", text(req, "//Iva/AlicIva/Importe"))
}

func TestAuthorizeInvoice_ServicesDates(t *testing.T) {
	env := newTestEnv(t, tax.Monotributo, authorizeResponses(approvedDetail))

	req := classCRequest("10")
	req.Concept = model.ConceptServices
	req.ServiceFrom = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	_, err := env.client.AuthorizeInvoice(context.Background(), req)
	require.NoError(t, err)

	sent := env.wsfe.last(opAuthorize)
	require.NotNil(t, sent)
	assert.Equal(t, "2", text(sent, "//FECAEDetRequest/Concepto"))
	assert.Equal(t, "20261001", text(sent, "//FECAEDetRequest/FchServDesde"))
	assert.Equal(t, "20261014", text(sent, "//FECAEDetRequest/FchServHasta"))
	assert.Equal(t, "20261014", text(sent, "//FECAEDetRequest/FchVtoPago"))
}

func TestAuthorizeInvoice_Rejected(t *testing.T) {
	env := newTestEnv(t, tax.Monotributo, authorizeResponses(rejectedDetail))

	_, err := env.client.AuthorizeInvoice(context.Background(), classCRequest("50"))

	var re *api.RejectedError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "R", re.Result)
	assert.Contains(t, err.Error(), "10015")
	assert.Contains(t, err.Error(), "CUIT invalido")
}

func TestAuthorizeInvoice_ApprovedIncomplete(t *testing.T) {
	env := newTestEnv(t, tax.Monotributo, authorizeResponses(incompleteDetail))

	_, err := env.client.AuthorizeInvoice(context.Background(), classCRequest("50"))

	var pe *api.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, opAuthorize, pe.Operation)
	assert.Contains(t, pe.Message, "incomplete")
}

func TestAuthorizeInvoice_LocalValidation(t *testing.T) {
	tests := []struct {
		name     string
		taxpayer tax.TaxpayerType
		req      model.InvoiceRequest
		check    func(t *testing.T, err error)
	}{
		{
			name:     "class B for monotributo",
			taxpayer: tax.Monotributo,
			req:      model.InvoiceRequest{Class: model.ClassB, Total: decimal.NewFromInt(10)},
			check: func(t *testing.T, err error) {
				var ue *api.UnsupportedInvoiceClassError
				require.ErrorAs(t, err, &ue)
				assert.Equal(t, 6, ue.Class)
			},
		},
		{
			name: "unknown class",
			req:  model.InvoiceRequest{Class: model.InvoiceClass(1), Total: decimal.NewFromInt(10)},
			check: func(t *testing.T, err error) {
				var ue *api.UnsupportedInvoiceClassError
				require.ErrorAs(t, err, &ue)
			},
		},
		{
			name:     "non numeric document",
			taxpayer: tax.Monotributo,
			req:      model.InvoiceRequest{Class: model.ClassC, RecipientDocType: model.DocDNI, RecipientDocNumber: "30.111.222", Total: decimal.NewFromInt(10)},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidRequest)
			},
		},
		{
			name:     "more than 2 decimals",
			taxpayer: tax.Monotributo,
			req:      model.InvoiceRequest{Class: model.ClassC, Total: decimal.RequireFromString("100.005")},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidRequest)
			},
		},
		{
			name:     "negative total",
			taxpayer: tax.Monotributo,
			req:      model.InvoiceRequest{Class: model.ClassC, Total: decimal.NewFromInt(-1)},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidRequest)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.taxpayer, authorizeResponses(approvedDetail))

			_, err := env.client.AuthorizeInvoice(context.Background(), tt.req)
			tt.check(t, err)

			assert.Empty(t, env.wsfe.recorded())
			assert.EqualValues(t, 0, env.signer.calls.Load())
		})
	}
}

func TestNextInvoiceNumber(t *testing.T) {
	env := newTestEnv(t, tax.Monotributo, map[string]string{wsfeNS + opLastAuthorized: lastAuthorizedBody(54)})

	n, err := env.client.NextInvoiceNumber(context.Background(), model.ClassC)
	require.NoError(t, err)
	assert.EqualValues(t, 55, n)

	n, err = env.client.NextInvoiceNumber(context.Background(), model.ClassC)
	require.NoError(t, err)
	assert.EqualValues(t, 55, n)

	req := env.wsfe.last(opLastAuthorized)
	require.NotNil(t, req)
	assert.Equal(t, "1", text(req, "//FECompUltimoAutorizado/PtoVta"))
	assert.Equal(t, "11", text(req, "//FECompUltimoAutorizado/CbteTipo"))
	assert.EqualValues(t, 1, env.wsaaCalls.Load())
}

func TestLastAuthorized_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{
			name: "missing number",
			body: soapBody(`<FECompUltimoAutorizadoResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECompUltimoAutorizadoResult><PtoVta>1</PtoVta><CbteTipo>11</CbteTipo></FECompUltimoAutorizadoResult></FECompUltimoAutorizadoResponse>`),
			msg:  "CbteNro missing",
		},
		{
			name: "service errors",
			body: soapBody(`<FECompUltimoAutorizadoResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECompUltimoAutorizadoResult><PtoVta>1</PtoVta><CbteTipo>11</CbteTipo><CbteNro>0</CbteNro><Errors><Err><Code>600</Code><Msg>ValidacionDeToken: No aparecio CUIT en lista de relaciones</Msg></Err></Errors></FECompUltimoAutorizadoResult></FECompUltimoAutorizadoResponse>`),
			msg:  "600: ValidacionDeToken",
		},
		{
			name: "soap fault",
			body: soapBody(`<soap:Fault><faultcode>soap:Server</faultcode><faultstring>Server was unable to process request</faultstring></soap:Fault>`),
			msg:  "unable to process request",
		},
		{
			name: "not xml",
			body: "<html>maintenance",
			msg:  "invalid XML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tax.Monotributo, map[string]string{wsfeNS + opLastAuthorized: tt.body})

			_, err := env.client.LastAuthorized(context.Background(), model.ClassC)

			var pe *api.ProtocolError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Message, tt.msg)
		})
	}
}

func TestLastAuthorized_HTTPError(t *testing.T) {
	env := newTestEnv(t, tax.Monotributo, map[string]string{wsfeNS + opLastAuthorized: "busy"})
	env.wsfe.status = http.StatusServiceUnavailable

	_, err := env.client.LastAuthorized(context.Background(), model.ClassC)

	var te *api.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Equal(t, "busy", te.Body)
}

func TestServerStatus(t *testing.T) {
	env := newTestEnv(t, tax.Monotributo, map[string]string{
		wsfeNS + opDummy: soapBody(`<FEDummyResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FEDummyResult><AppServer>OK</AppServer><DbServer>OK</DbServer><AuthServer>OK</AuthServer></FEDummyResult></FEDummyResponse>`),
	})

	st, err := env.client.ServerStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, st.OK())

	// FEDummy does not need a ticket
	assert.EqualValues(t, 0, env.wsaaCalls.Load())
	req := env.wsfe.last(opDummy)
	require.NotNil(t, req)
	assert.Nil(t, req.FindElement("//Auth"))
}

func TestGetInvoice(t *testing.T) {
	env := newTestEnv(t, tax.ResponsableInscripto, map[string]string{
		wsfeNS + opConsult: soapBody(`<FECompConsultarResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECompConsultarResult><ResultGet><Concepto>1</Concepto><DocTipo>96</DocTipo><DocNro>30111222</DocNro><CbteDesde>55</CbteDesde><CbteHasta>55</CbteHasta><CbteFch>20261014</CbteFch><ImpTotal>121</ImpTotal><ImpTotConc>0</ImpTotConc><ImpNeto>100</ImpNeto><ImpOpEx>0</ImpOpEx><ImpTrib>0</ImpTrib><ImpIVA>21</ImpIVA><MonId>PES</MonId><MonCotiz>1</MonCotiz><Resultado>A</Resultado><CodAutorizacion>12345678901234</CodAutorizacion><EmisionTipo>CAE</EmisionTipo><FchVto>20301231</FchVto><FchProceso>20261014120000</FchProceso><PtoVta>1</PtoVta><CbteTipo>6</CbteTipo></ResultGet></FECompConsultarResult></FECompConsultarResponse>`),
	})

	rec, err := env.client.GetInvoice(context.Background(), model.ClassB, 55)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.SalesPoint)
	assert.Equal(t, model.ClassB, rec.Class)
	assert.EqualValues(t, 55, rec.Number)
	assert.Equal(t, model.DocDNI, rec.DocType)
	assert.Equal(t, "30111222", rec.DocNumber)
	assert.Equal(t, "20261014", rec.IssueDate)
	assert.True(t, decimal.NewFromInt(121).Equal(rec.Total))
	assert.True(t, decimal.NewFromInt(100).Equal(rec.Net))
	assert.True(t, decimal.NewFromInt(21).Equal(rec.Tax))
	assert.Equal(t, "12345678901234", rec.AuthorizationCode)
	assert.Equal(t, "20301231", rec.AuthorizationExpiry)
	assert.Equal(t, "A", rec.Result)

	req := env.wsfe.last(opConsult)
	require.NotNil(t, req)
	assert.Equal(t, "55", text(req, "//FeCompConsReq/CbteNro"))
	assert.Equal(t, "6", text(req, "//FeCompConsReq/CbteTipo"))
}

func TestNewClient_InvalidCredentials(t *testing.T) {
	_, err := NewClient(Credentials{Env: Homo, SalesPoint: 1, Cuit: 20123456787}, &fakeSigner{})
	require.ErrorIs(t, err, ErrInvalidCuit)

	_, err = NewClient(Credentials{Env: Homo, SalesPoint: 0, Cuit: testCuit}, &fakeSigner{})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = NewClient(Credentials{Env: Homo, SalesPoint: 1, Cuit: testCuit}, nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAuthorizeInvoice_IssueDateLateEvening(t *testing.T) {
	// 23:30 in Buenos Aires, already the next day in UTC
	late := time.Date(2026, 10, 15, 2, 30, 0, 0, time.UTC)
	env := newTestEnvAt(t, tax.Monotributo, authorizeResponses(approvedDetail), late)

	res, err := env.client.AuthorizeInvoice(context.Background(), classCRequest("121"))
	require.NoError(t, err)

	req := env.wsfe.last(opAuthorize)
	require.NotNil(t, req)
	assert.Equal(t, "20261014", text(req, "//FECAEDetRequest/CbteFch"))
	assert.Equal(t, "20261014", res.IssueDate.Format(wsfeDateLayout))

	payload, err := qr.NewPayload(res.IssueDate, testCuit, 1, model.ClassC, res.InvoiceNumber, decimal.NewFromInt(121), res.AuthorizationCode).JSON()
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"fecha":"2026-10-14"`)
}
