package cms

import (
	"context"
	"crypto"
	"crypto/x509"

	"github.com/alapierre/go-afip-client/afip/api"
	"github.com/alapierre/go-afip-client/afip/keys"
	"go.mozilla.org/pkcs7"
)

// NativeSigner signs in process with go.mozilla.org/pkcs7 (SHA-256, signer certificate embedded).
type NativeSigner struct {
	cert *x509.Certificate
	key  crypto.Signer
}

// NewNativeSigner checks that cert and key belong together.
func NewNativeSigner(cert *x509.Certificate, key crypto.Signer) (*NativeSigner, error) {
	if err := keys.MatchKeyPair(cert, key); err != nil {
		return nil, &api.SigningError{Backend: string(BackendNative), Message: "invalid key pair", Err: err}
	}
	return &NativeSigner{cert: cert, key: key}, nil
}

// NewNativeSignerFromFiles ładuje certyfikat i klucz z plików
func NewNativeSignerFromFiles(certPath, keyPath, passphrase string) (*NativeSigner, error) {
	cert, err := keys.LoadCertificateFromFile(certPath)
	if err != nil {
		return nil, &api.SigningError{Backend: string(BackendNative), Message: "cannot load certificate " + certPath, Err: err}
	}

	var pass []byte
	if passphrase != "" {
		pass = []byte(passphrase)
	}
	key, err := keys.LoadPrivateKeyFromFile(keyPath, pass)
	if err != nil {
		return nil, &api.SigningError{Backend: string(BackendNative), Message: "cannot load private key " + keyPath, Err: err}
	}
	return NewNativeSigner(cert, key)
}

func (s *NativeSigner) Sign(_ context.Context, document []byte) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(document)
	if err != nil {
		return nil, &api.SigningError{Backend: string(BackendNative), Message: "init signed data", Err: err}
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	if err := sd.AddSigner(s.cert, s.key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, &api.SigningError{Backend: string(BackendNative), Message: "add signer", Err: err}
	}

	der, err := sd.Finish()
	if err != nil {
		return nil, &api.SigningError{Backend: string(BackendNative), Message: "finish signed data", Err: err}
	}
	logger.Debugf("native CMS signature created, %d bytes", len(der))
	return der, nil
}
