// Package cms produces the attached CMS/PKCS#7 SignedData envelope (DER) that WSAA
// expects around a login ticket request.
package cms

import (
	"context"
	"strings"

	"github.com/alapierre/go-afip-client/afip/api"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "afip.cms")

// Signer signs document and returns the DER encoded SignedData with the content attached.
type Signer interface {
	Sign(ctx context.Context, document []byte) ([]byte, error)
}

type Backend string

const (
	BackendNative  Backend = "native"
	BackendOpenSSL Backend = "openssl"
)

func (b *Backend) UnmarshalText(text []byte) error {
	*b = Backend(strings.ToLower(strings.TrimSpace(string(text))))
	return nil
}

// Options key material and backend selection.
type Options struct {
	Backend    Backend
	CertPath   string
	KeyPath    string
	Passphrase string
	// ścieżka do openssl, pusta -> szukamy w PATH
	OpenSSLPath string
}

// New creates the signer for the configured backend. Empty backend means native.
func New(opts Options) (Signer, error) {
	switch opts.Backend {
	case BackendNative, "":
		s, err := NewNativeSignerFromFiles(opts.CertPath, opts.KeyPath, opts.Passphrase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendOpenSSL:
		return &OpenSSLSigner{
			Tool:       opts.OpenSSLPath,
			CertPath:   opts.CertPath,
			KeyPath:    opts.KeyPath,
			Passphrase: opts.Passphrase,
		}, nil
	}
	return nil, &api.SigningError{Backend: string(opts.Backend), Message: "unknown signing backend (allowed: native, openssl)"}
}
