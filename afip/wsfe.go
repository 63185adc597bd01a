package afip

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alapierre/go-afip-client/afip/api"
	"github.com/alapierre/go-afip-client/afip/cms"
	"github.com/alapierre/go-afip-client/afip/model"
	"github.com/alapierre/go-afip-client/afip/tax"
	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	wsfeNS = "http://ar.gov.afip.dif.FEV1/"

	opDummy          = "FEDummy"
	opLastAuthorized = "FECompUltimoAutorizado"
	opAuthorize      = "FECAESolicitar"
	opConsult        = "FECompConsultar"

	wsfeDateLayout = "20060102"
	currencyPesos  = "PES"
	rateOne        = "1.0000"
)

// Client invoicing client for WSFEv1. Safe for concurrent use.
//
// NextInvoiceNumber followed by AuthorizeInvoice is not atomic on the remote side:
// two concurrent authorizations on the same sales point and class may get the same number,
// one of them is then rejected by WSFE. Numbering is owned by the service, the client does not lock.
type Client struct {
	creds   Credentials
	wsfe    *api.Transport
	tickets *TicketCache
	now     func() time.Time
}

type clientOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	tickets    *TicketCache
	wsaaURL    string
	wsfeURL    string
	now        func() time.Time
}

type Option func(*clientOptions)

// WithHTTPClient uses the transport of h for both endpoints (proxy settings).
func WithHTTPClient(h *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = h }
}

func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithTicketCache shares an existing cache, e.g. between clients of different sales points.
func WithTicketCache(tc *TicketCache) Option {
	return func(o *clientOptions) { o.tickets = tc }
}

func withEndpoints(wsaaURL, wsfeURL string) Option {
	return func(o *clientOptions) {
		o.wsaaURL = wsaaURL
		o.wsfeURL = wsfeURL
	}
}

func withNow(now func() time.Time) Option {
	return func(o *clientOptions) { o.now = now }
}

// NewClient validates creds and wires the WSAA and WSFE transports. signer may be nil
// when a ticket cache is supplied with WithTicketCache.
func NewClient(creds Credentials, signer cms.Signer, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	o := clientOptions{
		timeout: api.DefaultTimeout,
		wsaaURL: creds.Env.WsaaURL(),
		wsfeURL: creds.Env.WsfeURL(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	transportOpts := func(tlsCfg api.TransportOption) []api.TransportOption {
		res := []api.TransportOption{tlsCfg, api.WithTimeout(o.timeout)}
		if o.httpClient != nil {
			res = append(res, api.WithHTTPClient(o.httpClient))
		}
		return res
	}

	tickets := o.tickets
	if tickets == nil {
		if signer == nil {
			return nil, errors.Wrap(ErrInvalidRequest, "signer is required without a ticket cache")
		}
		auth := NewAuthClient(o.wsaaURL, signer, transportOpts(api.WithTLSConfig(api.DefaultTLSConfig()))...)
		auth.now = o.now
		tickets = NewTicketCache(auth, WithClock(o.now))
	}

	return &Client{
		creds:   creds,
		wsfe:    api.NewTransport(o.wsfeURL, transportOpts(api.WithTLSConfig(api.LegacyTLSConfig()))...),
		tickets: tickets,
		now:     o.now,
	}, nil
}

func (c *Client) Credentials() Credentials {
	return c.creds
}

func (c *Client) service() string {
	if c.creds.Service == "" {
		return DefaultService
	}
	return c.creds.Service
}

// Ticket returns the cached access ticket, logging in to WSAA when needed.
func (c *Client) Ticket(ctx context.Context) (model.Ticket, error) {
	return c.tickets.Ticket(ctx, c.service())
}

// ServerStatus FEDummy, no ticket required.
func (c *Client) ServerStatus(ctx context.Context) (model.ServerStatus, error) {
	env := api.NewEnvelope("soap", false)
	req := env.Body().CreateElement(opDummy)
	req.CreateAttr("xmlns", wsfeNS)

	var resp dummyResponse
	if _, err := c.call(ctx, opDummy, env, &resp); err != nil {
		return model.ServerStatus{}, err
	}
	r := resp.Body.Response.Result
	return model.ServerStatus{
		AppServer:  strings.TrimSpace(r.AppServer),
		DbServer:   strings.TrimSpace(r.DbServer),
		AuthServer: strings.TrimSpace(r.AuthServer),
	}, nil
}

// LastAuthorized last invoice number authorized for the configured sales point and class.
func (c *Client) LastAuthorized(ctx context.Context, class model.InvoiceClass) (int64, error) {
	env, req, err := c.newRequest(ctx, opLastAuthorized)
	if err != nil {
		return 0, err
	}
	api.AddText(req, "PtoVta", strconv.Itoa(c.creds.SalesPoint))
	api.AddText(req, "CbteTipo", strconv.Itoa(int(class)))

	var resp lastAuthorizedResponse
	if _, err := c.call(ctx, opLastAuthorized, env, &resp); err != nil {
		return 0, err
	}

	r := resp.Body.Response.Result
	logEvents(opLastAuthorized, r.Events)
	if errs := r.Errors.observations(); len(errs) > 0 {
		return 0, &api.ProtocolError{Operation: opLastAuthorized, Message: joinObservations(errs)}
	}
	if r.CbteNro == nil || strings.TrimSpace(*r.CbteNro) == "" {
		return 0, &api.ProtocolError{Operation: opLastAuthorized, Message: "CbteNro missing"}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(*r.CbteNro), 10, 64)
	if err != nil {
		return 0, &api.ProtocolError{Operation: opLastAuthorized, Message: "invalid CbteNro " + *r.CbteNro}
	}
	return n, nil
}

// NextInvoiceNumber LastAuthorized + 1.
func (c *Client) NextInvoiceNumber(ctx context.Context, class model.InvoiceClass) (int64, error) {
	last, err := c.LastAuthorized(ctx, class)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// AuthorizeInvoice requests a CAE for req under the next free number.
// Local validation failures are reported before any network call.
func (c *Client) AuthorizeInvoice(ctx context.Context, req model.InvoiceRequest) (model.InvoiceResult, error) {
	if c.creds.Taxpayer != "" {
		if err := tax.CheckClass(c.creds.Taxpayer, req.Class); err != nil {
			return model.InvoiceResult{}, err
		}
	}
	if req.Total.IsNegative() {
		return model.InvoiceResult{}, errors.Wrapf(ErrInvalidRequest, "negative total %s", req.Total)
	}
	if !req.Total.Equal(req.Total.Round(2)) {
		return model.InvoiceResult{}, errors.Wrapf(ErrInvalidRequest, "total %s has more than 2 decimal places", req.Total)
	}
	docNumber, err := normalizeDocNumber(req.RecipientDocNumber)
	if err != nil {
		return model.InvoiceResult{}, err
	}
	req.RecipientDocNumber = docNumber

	breakdown, err := tax.Breakdown(req.Total, req.Class)
	if err != nil {
		return model.InvoiceResult{}, err
	}

	if len(req.Items) > 0 && !req.ItemsTotal().Round(2).Equal(req.Total.Round(2)) {
		logger.WithFields(logrus.Fields{"items": req.ItemsTotal().StringFixed(2), "total": req.Total.StringFixed(2)}).
			Warn("items subtotal does not match invoice total")
	}

	number, err := c.NextInvoiceNumber(ctx, req.Class)
	if err != nil {
		return model.InvoiceResult{}, err
	}

	return c.authorize(ctx, req, number, breakdown)
}

func (c *Client) authorize(ctx context.Context, req model.InvoiceRequest, number int64, b model.TaxBreakdown) (model.InvoiceResult, error) {
	env, sol, err := c.newRequest(ctx, opAuthorize)
	if err != nil {
		return model.InvoiceResult{}, err
	}

	issueDate := c.now().In(argentina)

	caeReq := sol.CreateElement("FeCAEReq")
	cab := caeReq.CreateElement("FeCabReq")
	api.AddText(cab, "CantReg", "1")
	api.AddText(cab, "PtoVta", strconv.Itoa(c.creds.SalesPoint))
	api.AddText(cab, "CbteTipo", strconv.Itoa(int(req.Class)))

	det := caeReq.CreateElement("FeDetReq").CreateElement("FECAEDetRequest")
	writeDetail(det, req, number, issueDate, b)

	log := logger.WithFields(logrus.Fields{"class": req.Class.String(), "number": number, "pv": c.creds.SalesPoint})
	log.Debug("requesting CAE")

	var resp caeResponse
	raw, err := c.call(ctx, opAuthorize, env, &resp)
	if err != nil {
		return model.InvoiceResult{}, err
	}

	res, err := parseCAE(resp, raw)
	if err != nil {
		return model.InvoiceResult{}, err
	}
	res.InvoiceNumber = number
	res.IssueDate = issueDate

	log.WithField("cae", res.AuthorizationCode).Info("invoice authorized")
	return res, nil
}

func writeDetail(det *etree.Element, req model.InvoiceRequest, number int64, issueDate time.Time, b model.TaxBreakdown) {
	concept := req.Concept
	if concept == 0 {
		concept = model.ConceptProducts
	}
	docType := req.RecipientDocType
	if docType == 0 {
		docType = model.DocNoDoc
	}
	nr := strconv.FormatInt(number, 10)

	api.AddText(det, "Concepto", strconv.Itoa(int(concept)))
	api.AddText(det, "DocTipo", strconv.Itoa(int(docType)))
	api.AddText(det, "DocNro", req.RecipientDocNumber)
	api.AddText(det, "CbteDesde", nr)
	api.AddText(det, "CbteHasta", nr)
	api.AddText(det, "CbteFch", issueDate.Format(wsfeDateLayout))
	api.AddText(det, "ImpTotal", b.Net.Add(b.Tax).StringFixed(2))
	api.AddText(det, "ImpTotConc", "0.00")
	api.AddText(det, "ImpNeto", b.Net.StringFixed(2))
	api.AddText(det, "ImpOpEx", "0.00")
	api.AddText(det, "ImpTrib", "0.00")
	api.AddText(det, "ImpIVA", b.Tax.StringFixed(2))

	if concept != model.ConceptProducts {
		api.AddText(det, "FchServDesde", dateOr(req.ServiceFrom, issueDate))
		api.AddText(det, "FchServHasta", dateOr(req.ServiceTo, issueDate))
		api.AddText(det, "FchVtoPago", dateOr(req.PaymentDue, issueDate))
	}

	api.AddText(det, "MonId", currencyPesos)
	api.AddText(det, "MonCotiz", rateOne)

	if blocks := tax.VatBlocks(b, req.Class); len(blocks) > 0 {
		iva := det.CreateElement("Iva")
		for _, v := range blocks {
			alic := iva.CreateElement("AlicIva")
			api.AddText(alic, "Id", strconv.Itoa(v.ID))
			api.AddText(alic, "BaseImp", v.Base.StringFixed(2))
			api.AddText(alic, "Importe", v.Amount.StringFixed(2))
		}
	}
}

func parseCAE(resp caeResponse, raw []byte) (model.InvoiceResult, error) {
	r := resp.Body.Response.Result
	logEvents(opAuthorize, r.Events)

	var det caeDetail
	if len(r.FeDetResp.Details) > 0 {
		det = r.FeDetResp.Details[0]
	}

	result := strings.TrimSpace(det.Resultado)
	if result == "" {
		result = strings.TrimSpace(r.FeCabResp.Resultado)
	}
	if strings.TrimSpace(r.FeCabResp.Reproceso) == "S" {
		logger.Warn("WSFE reports reprocessed invoice (Reproceso=S)")
	}

	obs := append(observations(det.Observaciones.Obs), r.Errors.observations()...)

	if result != "A" {
		return model.InvoiceResult{}, &api.RejectedError{Result: result, Observations: obs, Body: string(raw)}
	}

	cae := strings.TrimSpace(det.CAE)
	exp := strings.TrimSpace(det.CAEFchVto)
	if cae == "" || exp == "" {
		return model.InvoiceResult{}, &api.ProtocolError{
			Operation: opAuthorize,
			Message:   "approved but incomplete response (CAE/CAEFchVto missing)",
			Body:      api.Truncate(string(raw), api.MaxTransportBody),
		}
	}
	if len(obs) > 0 {
		logger.WithField("observations", joinObservations(obs)).Warn("invoice approved with observations")
	}

	return model.InvoiceResult{AuthorizationCode: cae, AuthorizationExpiry: exp}, nil
}

// GetInvoice FECompConsultar for an already issued number. Useful to check whether an
// ambiguous failure still ended with an authorized invoice.
func (c *Client) GetInvoice(ctx context.Context, class model.InvoiceClass, number int64) (model.InvoiceRecord, error) {
	env, req, err := c.newRequest(ctx, opConsult)
	if err != nil {
		return model.InvoiceRecord{}, err
	}
	q := req.CreateElement("FeCompConsReq")
	api.AddText(q, "CbteTipo", strconv.Itoa(int(class)))
	api.AddText(q, "CbteNro", strconv.FormatInt(number, 10))
	api.AddText(q, "PtoVta", strconv.Itoa(c.creds.SalesPoint))

	var resp consultResponse
	if _, err := c.call(ctx, opConsult, env, &resp); err != nil {
		return model.InvoiceRecord{}, err
	}

	r := resp.Body.Response.Result
	logEvents(opConsult, r.Events)
	if errs := r.Errors.observations(); len(errs) > 0 {
		return model.InvoiceRecord{}, &api.ProtocolError{Operation: opConsult, Message: joinObservations(errs)}
	}
	g := r.ResultGet
	if g == nil {
		return model.InvoiceRecord{}, &api.ProtocolError{Operation: opConsult, Message: "ResultGet missing"}
	}

	rec := model.InvoiceRecord{
		SalesPoint:          g.PtoVta,
		Class:               model.InvoiceClass(g.CbteTipo),
		Number:              g.CbteDesde,
		DocType:             model.DocType(g.DocTipo),
		DocNumber:           strings.TrimSpace(g.DocNro),
		IssueDate:           strings.TrimSpace(g.CbteFch),
		AuthorizationCode:   strings.TrimSpace(g.CodAutoriz),
		AuthorizationExpiry: strings.TrimSpace(g.FchVto),
		Result:              strings.TrimSpace(g.Resultado),
	}
	for _, a := range []struct {
		dst *decimal.Decimal
		src string
		tag string
	}{{&rec.Total, g.ImpTotal, "ImpTotal"}, {&rec.Net, g.ImpNeto, "ImpNeto"}, {&rec.Tax, g.ImpIVA, "ImpIVA"}} {
		if *a.dst, err = parseAmount(a.src); err != nil {
			return model.InvoiceRecord{}, &api.ProtocolError{Operation: opConsult, Message: "invalid " + a.tag + " " + a.src}
		}
	}
	return rec, nil
}

// newRequest envelope with the operation element and the Auth block filled from the current ticket.
func (c *Client) newRequest(ctx context.Context, operation string) (*api.Envelope, *etree.Element, error) {
	ticket, err := c.Ticket(ctx)
	if err != nil {
		return nil, nil, err
	}

	env := api.NewEnvelope("soap", false)
	op := env.Body().CreateElement(operation)
	op.CreateAttr("xmlns", wsfeNS)

	auth := op.CreateElement("Auth")
	api.AddText(auth, "Token", ticket.Token)
	api.AddText(auth, "Sign", ticket.Sign)
	api.AddText(auth, "Cuit", strconv.FormatInt(c.creds.Cuit, 10))

	return env, op, nil
}

// call posts env under the operation's SOAPAction and decodes the response into v.
// The raw body is returned for diagnostics.
func (c *Client) call(ctx context.Context, operation string, env *api.Envelope, v any) ([]byte, error) {
	payload, err := env.Bytes()
	if err != nil {
		return nil, errors.Wrapf(err, "serialize %s envelope", operation)
	}

	body, err := c.wsfe.Call(ctx, wsfeNS+operation, payload)
	if err != nil {
		return nil, err
	}
	if err := decodeResponse(operation, body, v); err != nil {
		return body, err
	}
	return body, nil
}

func logEvents(operation string, events *wsfeEvents) {
	for _, e := range events.observations() {
		logger.WithFields(logrus.Fields{"operation": operation, "event": e.String()}).Warn("WSFE event")
	}
}

func dateOr(t, def time.Time) string {
	if t.IsZero() {
		t = def
	}
	return t.Format(wsfeDateLayout)
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// normalizeDocNumber empty means "0" (consumidor final); anything else must be digits only.
func normalizeDocNumber(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0", nil
	}
	if !digitsRe.MatchString(s) {
		return "", errors.Wrapf(ErrInvalidRequest, "recipient document number %q is not numeric", s)
	}
	return s, nil
}
