package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"os"

	"github.com/go-faster/errors"
	"github.com/youmark/pkcs8"
)

// ErrPassphraseRequired key is encrypted and no passphrase was given.
var ErrPassphraseRequired = errors.New("private key is encrypted, passphrase is required")

// LoadPrivateKeyFromFile ładuje klucz prywatny (PEM lub DER) i zwraca crypto.Signer.
func LoadPrivateKeyFromFile(path string, password []byte) (crypto.Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read key file")
	}
	return LoadPrivateKey(b, password)
}

// LoadPrivateKey accepts PKCS#1, SEC1, PKCS#8, encrypted PKCS#8 and legacy
// "Proc-Type: 4,ENCRYPTED" PEM blocks, or the same structures DER encoded.
func LoadPrivateKey(data []byte, password []byte) (crypto.Signer, error) {

	rest := data
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		switch block.Type {
		case "ENCRYPTED PRIVATE KEY":
			if len(password) == 0 {
				return nil, ErrPassphraseRequired
			}
			keyAny, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, password)
			if err != nil {
				return nil, errors.Wrap(err, "decrypt PKCS#8 encrypted private key")
			}
			return asSigner(keyAny)

		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			der := block.Bytes
			// klucze generowane przez starsze openssl genrsa -des3
			if x509.IsEncryptedPEMBlock(block) {
				if len(password) == 0 {
					return nil, ErrPassphraseRequired
				}
				var err error
				der, err = x509.DecryptPEMBlock(block, password)
				if err != nil {
					return nil, errors.Wrap(err, "decrypt legacy PEM private key")
				}
			}
			return parseDER(der)
		}
	}

	// nie PEM - może DER
	if k, err := parseDER(data); err == nil {
		return k, nil
	}
	if len(password) > 0 {
		if keyAny, err := pkcs8.ParsePKCS8PrivateKey(data, password); err == nil {
			return asSigner(keyAny)
		}
	}
	return nil, errors.New("no supported private key found (PEM or DER)")
}

func parseDER(der []byte) (crypto.Signer, error) {
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return asSigner(k)
	}
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	return nil, errors.New("unsupported private key encoding")
}

func asSigner(keyAny any) (crypto.Signer, error) {
	switch k := keyAny.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	default:
		return nil, errors.Errorf("unsupported key type: %T (expected RSA or ECDSA)", keyAny)
	}
}

func LoadCertificateFromFile(path string) (*x509.Certificate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read cert file")
	}
	return LoadCertificate(b)
}

// LoadCertificate parses a PEM or DER X.509 certificate.
func LoadCertificate(certBytes []byte) (*x509.Certificate, error) {
	// PEM?
	if block, _ := pem.Decode(certBytes); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, errors.Errorf("unexpected PEM block: %s", block.Type)
		}
		certBytes = block.Bytes
	}

	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse x509")
	}
	return cert, nil
}

// Fingerprint hex SHA-256 of the public key in SubjectPublicKeyInfo DER form.
func Fingerprint(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", errors.Wrap(err, "marshal public key")
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}

// MatchKeyPair sprawdza, czy certyfikat i klucz prywatny są parą (ten sam klucz publiczny).
func MatchKeyPair(cert *x509.Certificate, key crypto.Signer) error {
	certFp, err := Fingerprint(cert.PublicKey)
	if err != nil {
		return err
	}
	keyFp, err := Fingerprint(key.Public())
	if err != nil {
		return err
	}
	if certFp != keyFp {
		return errors.Errorf("certificate and private key do not match (cert %s, key %s)", certFp, keyFp)
	}
	return nil
}
