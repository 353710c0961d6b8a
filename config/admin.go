package config

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const adminCredentialsFile = "admin_credentials.json"

type AdminCredentials struct {
	Address    string `json:"address"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// LoadAdminKey reads the key stored at path by LoadOrGenerateAdminKey or
// the keygen command.
func LoadAdminKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read admin credentials: %w", err)
	}

	var creds AdminCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse admin credentials: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(creds.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to restore admin private key: %w", err)
	}
	return privateKey, nil
}

// LoadOrGenerateAdminKey reads the administrator key from path, creating a
// fresh key there on first use. The administrator identity is the key's
// address.
func LoadOrGenerateAdminKey(path string) (*ecdsa.PrivateKey, common.Address, error) {
	if _, err := os.Stat(path); err == nil {
		privateKey, err := LoadAdminKey(path)
		if err != nil {
			return nil, common.Address{}, err
		}
		return privateKey, crypto.PubkeyToAddress(privateKey.PublicKey), nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, common.Address{}, fmt.Errorf("failed to stat admin credentials: %w", err)
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to generate admin key: %w", err)
	}

	creds := NewAdminCredentials(privateKey)
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to marshal admin credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to create credentials directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to save admin credentials: %w", err)
	}

	return privateKey, crypto.PubkeyToAddress(privateKey.PublicKey), nil
}

func NewAdminCredentials(key *ecdsa.PrivateKey) AdminCredentials {
	return AdminCredentials{
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}
}
