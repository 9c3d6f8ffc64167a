package helpers

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

func ReadCertificateFromFile(filePath string) (*x509.Certificate, error) {
	certBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(certBytes)
	if block == nil {
		return nil, fmt.Errorf("no certificate found in %s", filePath)
	}

	return x509.ParseCertificate(block.Bytes)
}

// ParsePrivateKey accepts a PEM encoded private key, or the bare DER
// bytes, in PKCS1, PKCS8 or SEC1 format.
func ParsePrivateKey(privKeyBytes []byte) (any, error) {
	derBytes := privKeyBytes
	if block, _ := pem.Decode(privKeyBytes); block != nil {
		derBytes = block.Bytes
	}

	if key, err := x509.ParsePKCS1PrivateKey(derBytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(derBytes); err == nil {
		switch key := key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey:
			return key, nil
		default:
			return nil, errors.New("found unsupported private key type in PKCS#8 wrapping")
		}
	}
	if key, err := x509.ParseECPrivateKey(derBytes); err == nil {
		return key, nil
	}

	return nil, errors.New("failed to parse private key")
}
