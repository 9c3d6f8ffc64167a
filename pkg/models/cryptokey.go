package models

import (
	"crypto/x509"
	"encoding/json"
)

type KeyType x509.PublicKeyAlgorithm

type KeyMetadata struct {
	Type KeyType `json:"type" gorm:"serializer:text"`
	Bits int     `json:"bits"`
}

func (kt KeyType) String() string {
	publicKeyAlg := x509.PublicKeyAlgorithm(kt)
	return publicKeyAlg.String()
}

func (kt KeyType) MarshalText() ([]byte, error) {
	return []byte(kt.String()), nil
}

func (kt *KeyType) UnmarshalText(text []byte) error {
	k, err := ParseKeyType(string(text))
	if err != nil {
		return err
	}

	*kt = *k
	return nil
}

func (kt KeyType) MarshalJSON() ([]byte, error) {
	str := kt.String()
	return json.Marshal(str)
}

func (kt *KeyType) UnmarshalJSON(data []byte) error {
	var t string
	err := json.Unmarshal(data, &t)
	if err != nil {
		return err
	}

	nkt, err := ParseKeyType(t)
	if err != nil {
		return err
	}

	*kt = *nkt
	return nil
}

func ParseKeyType(s string) (*KeyType, error) {
	var nkt KeyType

	switch s {
	case "RSA":
		nkt = KeyType(x509.RSA)
	case "ECDSA":
		nkt = KeyType(x509.ECDSA)
	case "Ed25519":
		nkt = KeyType(x509.Ed25519)
	default:
		nkt = KeyType(x509.UnknownPublicKeyAlgorithm)
	}

	return &nkt, nil
}
