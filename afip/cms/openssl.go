package cms

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/alapierre/go-afip-client/afip/api"
)

// OpenSSLSigner delegates to `openssl cms -sign -nodetach -binary -outform DER`.
type OpenSSLSigner struct {
	Tool       string // pusty -> "openssl" z PATH
	CertPath   string
	KeyPath    string
	Passphrase string
}

func (s *OpenSSLSigner) tool() (string, error) {
	if s.Tool != "" {
		return exec.LookPath(s.Tool)
	}
	return exec.LookPath("openssl")
}

func (s *OpenSSLSigner) Sign(ctx context.Context, document []byte) ([]byte, error) {
	tool, err := s.tool()
	if err != nil {
		return nil, &api.SigningError{Backend: string(BackendOpenSSL), Message: "openssl not found, install it or set the tool path", Err: err}
	}

	td, err := os.MkdirTemp("", "afip-cms-*")
	if err != nil {
		return nil, &api.SigningError{Backend: string(BackendOpenSSL), Message: "create temp dir", Err: err}
	}
	defer func() { _ = os.RemoveAll(td) }()

	in := filepath.Join(td, "ltr.xml")
	out := filepath.Join(td, "cms.der")
	if err := os.WriteFile(in, document, 0o600); err != nil {
		return nil, &api.SigningError{Backend: string(BackendOpenSSL), Message: "write request", Err: err}
	}

	args := []string{
		"cms", "-sign",
		"-in", in,
		"-signer", s.CertPath,
		"-inkey", s.KeyPath,
		"-outform", "DER",
		"-out", out,
		"-nodetach",
		"-binary",
	}
	if s.Passphrase != "" {
		args = append(args, "-passin", "pass:"+s.Passphrase)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.WithField("tool", tool).Debug("running openssl cms -sign")

	if err := cmd.Run(); err != nil {
		output := stderr.String()
		if output == "" {
			output = stdout.String()
		}
		return nil, &api.SigningError{Backend: string(BackendOpenSSL), Message: "openssl cms -sign failed", Output: output, Err: err}
	}

	der, err := os.ReadFile(out)
	if err != nil {
		return nil, &api.SigningError{Backend: string(BackendOpenSSL), Message: "read signed output", Output: stderr.String(), Err: err}
	}
	return der, nil
}
