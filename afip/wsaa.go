package afip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/alapierre/go-afip-client/afip/api"
	"github.com/alapierre/go-afip-client/afip/cms"
	"github.com/alapierre/go-afip-client/afip/model"
	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

const (
	wsaaNS = "http://wsaa.view.sua.dvadac.desein.afip.gov"

	ticketTimeLayout = "2006-01-02T15:04:05Z"
	// start of the validity window is moved back to tolerate clock skew
	ticketBackdate = 5 * time.Minute
	ticketLifetime = 12 * time.Hour
	base64LineLen  = 76
)

// AuthClient obtains access tickets from WSAA.
type AuthClient struct {
	transport *api.Transport
	signer    cms.Signer
	now       func() time.Time
}

func NewAuthClient(url string, signer cms.Signer, opts ...api.TransportOption) *AuthClient {
	return &AuthClient{
		transport: api.NewTransport(url, opts...),
		signer:    signer,
		now:       time.Now,
	}
}

// Login performs a loginCms call for service. Always goes to the network, use TicketCache for reuse.
func (c *AuthClient) Login(ctx context.Context, service string) (model.Ticket, error) {
	if service == "" {
		service = DefaultService
	}

	tra, err := buildLoginTicketRequest(c.now(), service)
	if err != nil {
		return model.Ticket{}, err
	}

	signed, err := c.signer.Sign(ctx, tra)
	if err != nil {
		return model.Ticket{}, err
	}

	env := api.NewEnvelope("soapenv", true, api.Namespace{Prefix: "wsaa", URI: wsaaNS})
	login := env.Body().CreateElement("wsaa:loginCms")
	api.AddText(login, "wsaa:in0", wrapBase64(signed))

	payload, err := env.Bytes()
	if err != nil {
		return model.Ticket{}, errors.Wrap(err, "serialize loginCms envelope")
	}

	logger.WithFields(logrus.Fields{"service": service, "url": c.transport.URL()}).Debug("WSAA loginCms")

	body, err := c.transport.Call(ctx, "", payload)
	if err != nil {
		return model.Ticket{}, err
	}

	ticket, err := parseLoginResponse(body)
	if err != nil {
		return model.Ticket{}, err
	}

	logger.WithField("expires", ticket.ExpiresAt).Debug("WSAA ticket obtained")
	return ticket, nil
}

type loginTicketRequest struct {
	Header struct {
		UniqueID       int64  `xml:"uniqueId"`
		GenerationTime string `xml:"generationTime"`
		ExpirationTime string `xml:"expirationTime"`
	} `xml:"header"`
	Service string `xml:"service"`
}

// buildLoginTicketRequest creates the unsigned TRA document.
func buildLoginTicketRequest(now time.Time, service string) ([]byte, error) {
	now = now.UTC()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("loginTicketRequest")
	root.CreateAttr("version", "1.0")

	header := root.CreateElement("header")
	api.AddText(header, "uniqueId", strconv.FormatInt(now.Unix(), 10))
	api.AddText(header, "generationTime", now.Add(-ticketBackdate).Format(ticketTimeLayout))
	api.AddText(header, "expirationTime", now.Add(ticketLifetime).Format(ticketTimeLayout))
	api.AddText(root, "service", service)

	b, err := doc.WriteToBytes()
	if err != nil {
		return nil, errors.Wrap(err, "serialize loginTicketRequest")
	}
	return b, nil
}

func parseLoginTicketRequest(b []byte) (loginTicketRequest, error) {
	var r loginTicketRequest
	err := xml.Unmarshal(b, &r)
	return r, err
}

type loginTicketResponse struct {
	Header struct {
		ExpirationTime string `xml:"expirationTime"`
	} `xml:"header"`
	Credentials struct {
		Token string `xml:"token"`
		Sign  string `xml:"sign"`
	} `xml:"credentials"`
}

func parseLoginResponse(body []byte) (model.Ticket, error) {
	const op = "loginCms"

	if err := api.CheckFault(op, body); err != nil {
		return model.Ticket{}, err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return model.Ticket{}, &api.ProtocolError{Operation: op, Message: "invalid XML response", Body: api.Truncate(string(body), api.MaxTransportBody)}
	}

	ret := doc.FindElement("//loginCmsReturn")
	if ret == nil || strings.TrimSpace(ret.Text()) == "" {
		return model.Ticket{}, &api.ProtocolError{Operation: op, Message: "loginCmsReturn missing", Body: api.Truncate(string(body), api.MaxTransportBody)}
	}

	// loginCmsReturn carries the TA document as escaped text
	ta := html.UnescapeString(strings.TrimSpace(ret.Text()))

	var resp loginTicketResponse
	if err := xml.NewDecoder(bytes.NewReader([]byte(ta))).Decode(&resp); err != nil {
		return model.Ticket{}, &api.ProtocolError{Operation: op, Message: "invalid loginTicketResponse: " + err.Error(), Body: api.Truncate(ta, api.MaxTransportBody)}
	}

	token := strings.TrimSpace(resp.Credentials.Token)
	sign := strings.TrimSpace(resp.Credentials.Sign)
	exp := strings.TrimSpace(resp.Header.ExpirationTime)
	if token == "" || sign == "" || exp == "" {
		return model.Ticket{}, &api.ProtocolError{Operation: op, Message: "token, sign or expirationTime missing", Body: api.Truncate(ta, api.MaxTransportBody)}
	}

	expiresAt, err := parseExpiration(exp)
	if err != nil {
		return model.Ticket{}, &api.ProtocolError{Operation: op, Message: "invalid expirationTime " + exp, Body: api.Truncate(ta, api.MaxTransportBody)}
	}

	return model.Ticket{Token: token, Sign: sign, ExpiresAt: expiresAt}, nil
}

// parseExpiration honours the offset when present, otherwise the first 19 characters are read as UTC.
func parseExpiration(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if len(s) < 19 {
		return time.Time{}, errors.Errorf("expiration time too short: %q", s)
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s[:19], time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func wrapBase64(b []byte) string {
	s := base64.StdEncoding.EncodeToString(b)
	var sb strings.Builder
	for len(s) > base64LineLen {
		sb.WriteString(s[:base64LineLen])
		sb.WriteByte('\n')
		s = s[base64LineLen:]
	}
	sb.WriteString(s)
	return sb.String()
}
