package afip

import (
	"fmt"
	"strings"
)

type Environment int

const (
	Homo Environment = iota
	Prod
)

// WsaaURL authentication endpoint (LoginCms).
func (e Environment) WsaaURL() string {
	switch e {
	case Prod:
		return "https://wsaa.afip.gov.ar/ws/services/LoginCms"
	case Homo:
		return "https://wsaahomo.afip.gov.ar/ws/services/LoginCms"
	}
	panic("Invalid environment")
}

// WsfeURL billing endpoint (WSFEv1).
func (e Environment) WsfeURL() string {
	switch e {
	case Prod:
		return "https://servicios1.afip.gov.ar/wsfev1/service.asmx"
	case Homo:
		return "https://wswhomo.afip.gov.ar/wsfev1/service.asmx"
	}
	panic("Invalid environment")
}

func (e Environment) Name() string {
	switch e {
	case Prod:
		return "prod"
	case Homo:
		return "homo"
	}
	panic("Invalid environment")
}

func (e Environment) String() string {
	return e.Name()
}

func (e *Environment) UnmarshalText(text []byte) error {
	val := strings.ToLower(strings.TrimSpace(string(text)))

	switch val {
	case "prod", "production":
		*e = Prod
	case "homo", "homologation", "test":
		*e = Homo
	default:
		return fmt.Errorf("invalid AFIP_MODE: %q (allowed: prod, homo)", val)
	}
	return nil
}
