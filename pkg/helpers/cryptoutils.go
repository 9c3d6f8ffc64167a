package helpers

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

func GenerateRSAKey(bits int) (*rsa.PrivateKey, error) {
	privkey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}

	return privkey, nil
}

func GenerateECDSAKey(curve elliptic.Curve) (*ecdsa.PrivateKey, error) {
	privkey, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, err
	}

	return privkey, nil
}

// SerializePublicKey encodes a public key as base64 over a PEM block
// holding the PKIX DER.
func SerializePublicKey(pubKey any) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pubKey)
	if err != nil {
		return "", err
	}

	pemBlock := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return base64.StdEncoding.EncodeToString(pemBlock), nil
}

// ParsePublicKey is the inverse of SerializePublicKey.
func ParsePublicKey(encoded string) (any, error) {
	pemBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("could not decode base64 public key: %w", err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no public key found")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("could not parse public key: %w", err)
	}

	return pubKey, nil
}

func PublicKeyFingerprint(pubKey any) string {
	pk, err := x509.MarshalPKIXPublicKey(pubKey)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(pk))
}

func EqualPublicKeys(pubKey1, pubKey2 any) bool {
	switch pubKey1.(type) {
	case *rsa.PublicKey:
		pk2, ok := pubKey2.(*rsa.PublicKey)
		if !ok {
			return false
		}
		return pubKey1.(*rsa.PublicKey).Equal(pk2)
	case *ecdsa.PublicKey:
		pk2, ok := pubKey2.(*ecdsa.PublicKey)
		if !ok {
			return false
		}
		return pubKey1.(*ecdsa.PublicKey).Equal(pk2)
	}

	return false
}

func CalculateRSAKeySizes(keyMin int, keyMax int) []int {
	var keySizes []int
	key := keyMin
	for {
		if key%128 == 0 {
			keySizes = append(keySizes, key)
			key = key + 128
		}
		if key%1024 == 0 {
			break
		}
	}
	for {
		if key%1024 == 0 {
			keySizes = append(keySizes, key)
			if key == keyMax {
				break
			}
			key = key + 1024
		} else {
			break
		}
	}
	return keySizes
}

func CalculateECDSAKeySizes(keyMin int, keyMax int) []int {
	var keySizes []int
	keySizes = append(keySizes, keyMin)
	if keyMin < 224 && keyMax > 224 {
		keySizes = append(keySizes, 224)
	}
	if keyMin < 256 && keyMax > 256 {
		keySizes = append(keySizes, 256)
	}
	if keyMin < 384 && keyMax > 384 {
		keySizes = append(keySizes, 384)
	}
	if keyMin < 521 && keyMax >= 521 {
		keySizes = append(keySizes, 521)
	}
	return keySizes
}
