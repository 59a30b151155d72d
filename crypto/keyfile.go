package crypto

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const pemBlockType = "PRIVATE KEY"

// MarshalPrivateKeyPEM encodes the key as a PKCS#8 PEM document.
func MarshalPrivateKeyPEM(sk PrivateKey) ([]byte, error) {
	if len(sk) != PrivateKeySize {
		return nil, ErrInvalidPrivateKey
	}
	der, err := x509.MarshalPKCS8PrivateKey(ed25519.PrivateKey(sk))
	if err != nil {
		return nil, fmt.Errorf("marshal pkcs8: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemBlockType, Bytes: der}), nil
}

// ParsePrivateKeyPEM decodes a PKCS#8 PEM document holding an Ed25519 key.
func ParsePrivateKeyPEM(data []byte) (PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemBlockType {
		return nil, errors.New("no PKCS#8 private key block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse pkcs8: %w", err)
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
	return NewPrivateKeyFromBytes(edKey), nil
}

// SavePrivateKey writes the key to path. Existing files are only replaced when overwrite is set.
func SavePrivateKey(path string, sk PrivateKey, overwrite bool) error {
	data, err := MarshalPrivateKeyPEM(sk)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.Write(data); err != nil {
		return err
	}
	return file.Close()
}

// LoadPrivateKey reads a PKCS#8 PEM key file.
func LoadPrivateKey(path string) (PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKeyPEM(data)
}

// LoadOrGeneratePrivateKey loads the key at path, or generates and saves a new one
// if the file does not exist. An empty path yields an ephemeral key.
func LoadOrGeneratePrivateKey(path string) (PrivateKey, bool, error) {
	if path != "" {
		sk, err := LoadPrivateKey(path)
		if err == nil {
			return sk, false, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, false, fmt.Errorf("load key %s: %w", path, err)
		}
	}

	_, sk, err := GenerateKeyPair()
	if err != nil {
		return nil, false, err
	}
	if path != "" {
		if err := SavePrivateKey(path, sk, false); err != nil {
			return nil, false, fmt.Errorf("save key %s: %w", path, err)
		}
	}
	return sk, true, nil
}
