package api

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/beevik/etree"
)

const SoapEnvNS = "http://schemas.xmlsoap.org/soap/envelope/"

// Namespace extra prefix declared on the Envelope element.
type Namespace struct {
	Prefix string
	URI    string
}

// Envelope SOAP 1.1 request under construction.
type Envelope struct {
	doc  *etree.Document
	body *etree.Element
}

// NewEnvelope creates an envelope with the soap prefix `envPrefix`, an empty Header and an empty Body.
func NewEnvelope(envPrefix string, header bool, namespaces ...Namespace) *Envelope {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement(envPrefix + ":Envelope")
	env.CreateAttr("xmlns:"+envPrefix, SoapEnvNS)
	for _, ns := range namespaces {
		env.CreateAttr("xmlns:"+ns.Prefix, ns.URI)
	}
	if header {
		env.CreateElement(envPrefix + ":Header")
	}
	return &Envelope{doc: doc, body: env.CreateElement(envPrefix + ":Body")}
}

// Body zwraca element soap:Body do dalszej budowy
func (e *Envelope) Body() *etree.Element {
	return e.body
}

// Bytes serialises the envelope; text content is escaped by etree.
func (e *Envelope) Bytes() ([]byte, error) {
	e.doc.Indent(2)
	return e.doc.WriteToBytes()
}

// AddText dodaje <tag>text</tag> jako dziecko parent i zwraca nowy element.
func AddText(parent *etree.Element, tag, text string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(text)
	return el
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type faultEnvelope struct {
	Body struct {
		Fault *soapFault `xml:"Fault"`
	} `xml:"Body"`
}

// CheckFault returns a ProtocolError when body carries a SOAP Fault, nil otherwise.
// Unparseable bodies are reported as ProtocolError as well.
func CheckFault(operation string, body []byte) error {
	var env faultEnvelope
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&env); err != nil {
		return &ProtocolError{Operation: operation, Message: "invalid XML response: " + err.Error(), Body: Truncate(string(body), MaxTransportBody)}
	}
	if f := env.Body.Fault; f != nil {
		return &ProtocolError{
			Operation: operation,
			Message:   "SOAP fault " + strings.TrimSpace(f.Code) + ": " + strings.TrimSpace(f.String),
			Body:      Truncate(string(body), MaxTransportBody),
		}
	}
	return nil
}

// FaultString wyciąga faultstring z body (np. przy HTTP 500), "" gdy brak.
func FaultString(body []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return ""
	}
	if el := doc.FindElement("//faultstring"); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}
