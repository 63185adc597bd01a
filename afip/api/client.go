package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/alapierre/go-afip-client/afip/util"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "afip.api")

// DefaultTimeout fixed request timeout for WSAA and WSFE calls.
const DefaultTimeout = 30 * time.Second

// Transport posts SOAP envelopes to a single endpoint.
type Transport struct {
	rest *resty.Client
	url  string
}

type transportConfig struct {
	tls       *tls.Config
	timeout   time.Duration
	transport http.RoundTripper
}

type TransportOption func(*transportConfig)

// WithTLSConfig ustawia konfigurację TLS transportu (np. LegacyTLSConfig dla WSFE).
// Applied after WithHTTPClient, so an injected transport keeps the profile.
func WithTLSConfig(cfg *tls.Config) TransportOption {
	return func(c *transportConfig) { c.tls = cfg }
}

// WithTimeout nadpisuje DefaultTimeout
func WithTimeout(d time.Duration) TransportOption {
	return func(c *transportConfig) { c.timeout = d }
}

// WithHTTPClient uses the transport of an existing http.Client (proxies, test servers).
// An *http.Transport is cloned, the caller's instance is never modified.
func WithHTTPClient(h *http.Client) TransportOption {
	return func(c *transportConfig) {
		if h != nil && h.Transport != nil {
			c.transport = h.Transport
		}
	}
}

// NewTransport creates a transport for url. No retries: retry policy belongs to the caller.
func NewTransport(url string, opts ...TransportOption) *Transport {
	cfg := transportConfig{timeout: DefaultTimeout}
	for _, o := range opts {
		o(&cfg)
	}

	rest := resty.New().
		SetTimeout(cfg.timeout).
		SetRetryCount(0)

	if cfg.transport != nil {
		rt := cfg.transport
		if ht, ok := rt.(*http.Transport); ok {
			rt = ht.Clone()
		}
		rest.SetTransport(rt)
	}
	if cfg.tls != nil {
		if _, ok := rest.GetClient().Transport.(*http.Transport); ok {
			rest.SetTLSClientConfig(cfg.tls.Clone())
		} else {
			logger.Warn("custom round tripper without *http.Transport, TLS profile not applied")
		}
	}
	return &Transport{rest: rest, url: url}
}

// URL endpoint transportu
func (t *Transport) URL() string {
	return t.url
}

// Call posts envelope with the given SOAPAction (may be empty) and returns the raw response body.
// HTTP status >= 400 and network failures are reported as *TransportError.
func (t *Transport) Call(ctx context.Context, action string, envelope []byte) ([]byte, error) {
	r := t.rest.R().SetContext(ctx)
	if util.HttpTraceEnabled() {
		r.EnableTrace()
	}

	logger.WithFields(logrus.Fields{"url": t.url, "action": action}).Debug("SOAP call")

	resp, err := r.
		SetHeader("Content-Type", "text/xml; charset=UTF-8").
		SetHeader("SOAPAction", action).
		SetBody(envelope).
		Post(t.url)

	printTraceInfo(t.url, err, resp)

	if err != nil {
		return nil, &TransportError{URL: t.url, Err: err}
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		body := resp.Body()
		e := &TransportError{URL: t.url, StatusCode: resp.StatusCode(), Body: Truncate(string(body), MaxTransportBody)}
		if fs := FaultString(body); fs != "" {
			logger.WithField("fault", fs).Debug("SOAP fault in error response")
		}
		return nil, e
	}
	return resp.Body(), nil
}

func printTraceInfo(url string, err error, resp *resty.Response) {

	if !util.HttpTraceEnabled() || resp == nil {
		return
	}

	ti := resp.Request.TraceInfo()
	logger.WithFields(logrus.Fields{
		"url":         url,
		"error":       err,
		"status":      resp.StatusCode(),
		"proto":       resp.Proto(),
		"time":        resp.Time(),
		"dns":         ti.DNSLookup,
		"conn":        ti.ConnTime,
		"tls":         ti.TLSHandshake,
		"server":      ti.ServerTime,
		"total":       ti.TotalTime,
		"conn_reused": ti.IsConnReused,
		"attempt":     ti.RequestAttempt,
	}).Debug("HTTP trace")
	logger.Debugf("response body:\n%s", resp.String())
}
