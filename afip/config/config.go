// Package config reads the client configuration from AFIP_* environment variables.
package config

import (
	"github.com/alapierre/go-afip-client/afip"
	"github.com/alapierre/go-afip-client/afip/cms"
	"github.com/alapierre/go-afip-client/afip/tax"
	"github.com/caarlos0/env/v11"
	"github.com/go-faster/errors"
)

type Config struct {
	Mode        afip.Environment `env:"AFIP_MODE" envDefault:"homo"`
	SalesPoint  int              `env:"AFIP_PV,required"`
	Cuit        int64            `env:"AFIP_CUIT,required"`
	CertPath    string           `env:"AFIP_CERT,required"`
	KeyPath     string           `env:"AFIP_KEY,required"`
	KeyPass     string           `env:"AFIP_KEY_PASS"`
	Signer      cms.Backend      `env:"AFIP_SIGNER" envDefault:"native"`
	OpenSSLPath string           `env:"AFIP_OPENSSL"`
	Taxpayer    string           `env:"AFIP_TAXPAYER" envDefault:"MONO"`
	Service     string           `env:"AFIP_SERVICE" envDefault:"wsfe"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	if err := afip.ValidateCuit(cfg.Cuit); err != nil {
		return nil, errors.Wrap(err, "AFIP_CUIT")
	}
	return cfg, nil
}

// Credentials immutable identity for afip.NewClient.
func (c *Config) Credentials() afip.Credentials {
	return afip.Credentials{
		Env:        c.Mode,
		SalesPoint: c.SalesPoint,
		Cuit:       c.Cuit,
		Taxpayer:   tax.NormalizeTaxpayerType(c.Taxpayer),
		Service:    c.Service,
	}
}

func (c *Config) SignerOptions() cms.Options {
	return cms.Options{
		Backend:     c.Signer,
		CertPath:    c.CertPath,
		KeyPath:     c.KeyPath,
		Passphrase:  c.KeyPass,
		OpenSSLPath: c.OpenSSLPath,
	}
}

// NewSigner builds the configured signing backend.
func (c *Config) NewSigner() (cms.Signer, error) {
	return cms.New(c.SignerOptions())
}

// NewClient signer plus invoicing client in one step.
func (c *Config) NewClient(opts ...afip.Option) (*afip.Client, error) {
	signer, err := c.NewSigner()
	if err != nil {
		return nil, err
	}
	return afip.NewClient(c.Credentials(), signer, opts...)
}
