package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow/pkg/utils"
)

// CredentialCodec turns a credential bundle into the bytes stored on the account row.
type CredentialCodec interface {
	Encode(values map[string]string) ([]byte, error)
	Decode(data []byte) (map[string]string, error)
}

type encryptedCodec struct {
	key []byte
}

// NewEncryptedCodec stores bundles as AES-GCM sealed JSON. The key must be 16, 24 or 32 bytes.
func NewEncryptedCodec(key string) (CredentialCodec, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, errors.New("credential key must be 16, 24 or 32 bytes")
	}
	return &encryptedCodec{key: []byte(key)}, nil
}

func (c *encryptedCodec) Encode(values map[string]string) ([]byte, error) {
	if values == nil {
		values = map[string]string{}
	}
	plain, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	sealed, err := utils.Seal(plain, c.key)
	if err != nil {
		return nil, fmt.Errorf("encrypt credentials: %w", err)
	}
	return []byte(sealed), nil
}

func (c *encryptedCodec) Decode(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return map[string]string{}, nil
	}
	plain, err := utils.Open(string(data), c.key)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}
	values := map[string]string{}
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return values, nil
}

// PlainCodec stores bundles as unencrypted JSON.
type PlainCodec struct{}

func (PlainCodec) Encode(values map[string]string) ([]byte, error) {
	if values == nil {
		values = map[string]string{}
	}
	return json.Marshal(values)
}

func (PlainCodec) Decode(data []byte) (map[string]string, error) {
	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return values, nil
}
