package afip

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/alapierre/go-afip-client/afip/api"
)

// Typed WSFE responses. Tags are local names, so namespace prefixes are tolerated
// while every field is still bound to its own position in the tree.

type wsfeCodeMsg struct {
	Code string `xml:"Code"`
	Msg  string `xml:"Msg"`
}

type wsfeErrors struct {
	Err []wsfeCodeMsg `xml:"Err"`
}

type wsfeEvents struct {
	Evt []wsfeCodeMsg `xml:"Evt"`
}

func observations(items []wsfeCodeMsg) []api.Observation {
	out := make([]api.Observation, 0, len(items))
	for _, it := range items {
		out = append(out, api.Observation{Code: strings.TrimSpace(it.Code), Msg: strings.TrimSpace(it.Msg)})
	}
	return out
}

func (e *wsfeErrors) observations() []api.Observation {
	if e == nil {
		return nil
	}
	return observations(e.Err)
}

func (e *wsfeEvents) observations() []api.Observation {
	if e == nil {
		return nil
	}
	return observations(e.Evt)
}

type dummyResponse struct {
	Body struct {
		Response struct {
			Result struct {
				AppServer  string `xml:"AppServer"`
				DbServer   string `xml:"DbServer"`
				AuthServer string `xml:"AuthServer"`
			} `xml:"FEDummyResult"`
		} `xml:"FEDummyResponse"`
	} `xml:"Body"`
}

type lastAuthorizedResponse struct {
	Body struct {
		Response struct {
			Result struct {
				PtoVta   int         `xml:"PtoVta"`
				CbteTipo int         `xml:"CbteTipo"`
				CbteNro  *string     `xml:"CbteNro"`
				Errors   *wsfeErrors `xml:"Errors"`
				Events   *wsfeEvents `xml:"Events"`
			} `xml:"FECompUltimoAutorizadoResult"`
		} `xml:"FECompUltimoAutorizadoResponse"`
	} `xml:"Body"`
}

type caeDetail struct {
	Concepto      int    `xml:"Concepto"`
	DocTipo       int    `xml:"DocTipo"`
	DocNro        string `xml:"DocNro"`
	CbteDesde     int64  `xml:"CbteDesde"`
	CbteHasta     int64  `xml:"CbteHasta"`
	CbteFch       string `xml:"CbteFch"`
	Resultado     string `xml:"Resultado"`
	CAE           string `xml:"CAE"`
	CAEFchVto     string `xml:"CAEFchVto"`
	Observaciones struct {
		Obs []wsfeCodeMsg `xml:"Obs"`
	} `xml:"Observaciones"`
}

type caeResponse struct {
	Body struct {
		Response struct {
			Result struct {
				FeCabResp struct {
					Cuit      string `xml:"Cuit"`
					PtoVta    int    `xml:"PtoVta"`
					CbteTipo  int    `xml:"CbteTipo"`
					Resultado string `xml:"Resultado"`
					Reproceso string `xml:"Reproceso"`
				} `xml:"FeCabResp"`
				FeDetResp struct {
					Details []caeDetail `xml:"FECAEDetResponse"`
				} `xml:"FeDetResp"`
				Events *wsfeEvents `xml:"Events"`
				Errors *wsfeErrors `xml:"Errors"`
			} `xml:"FECAESolicitarResult"`
		} `xml:"FECAESolicitarResponse"`
	} `xml:"Body"`
}

type consultResponse struct {
	Body struct {
		Response struct {
			Result struct {
				ResultGet *struct {
					Concepto   int    `xml:"Concepto"`
					DocTipo    int    `xml:"DocTipo"`
					DocNro     string `xml:"DocNro"`
					CbteDesde  int64  `xml:"CbteDesde"`
					CbteHasta  int64  `xml:"CbteHasta"`
					CbteFch    string `xml:"CbteFch"`
					ImpTotal   string `xml:"ImpTotal"`
					ImpNeto    string `xml:"ImpNeto"`
					ImpIVA     string `xml:"ImpIVA"`
					Resultado  string `xml:"Resultado"`
					CodAutoriz string `xml:"CodAutorizacion"`
					FchVto     string `xml:"FchVto"`
					PtoVta     int    `xml:"PtoVta"`
					CbteTipo   int    `xml:"CbteTipo"`
				} `xml:"ResultGet"`
				Errors *wsfeErrors `xml:"Errors"`
				Events *wsfeEvents `xml:"Events"`
			} `xml:"FECompConsultarResult"`
		} `xml:"FECompConsultarResponse"`
	} `xml:"Body"`
}

func decodeResponse(operation string, body []byte, v any) error {
	if err := api.CheckFault(operation, body); err != nil {
		return err
	}
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
		return &api.ProtocolError{Operation: operation, Message: "invalid XML response: " + err.Error(), Body: api.Truncate(string(body), api.MaxTransportBody)}
	}
	return nil
}

func joinObservations(obs []api.Observation) string {
	parts := make([]string, 0, len(obs))
	for _, o := range obs {
		parts = append(parts, o.String())
	}
	return strings.Join(parts, " | ")
}
