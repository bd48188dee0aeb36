package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// CryptoConfig is the per-application parameter set selecting algorithm, key size,
// hash function and storage namespace. It is a value type: once registered it is
// copied, never shared, so no holder can observe a partially modified config.
// CryptoConfig 是每个应用程序的参数集，用于选择算法、密钥大小、哈希函数和存储命名空间。
type CryptoConfig struct {
	// KeySize is the key size in bits (256 for Ed25519/secp256k1; 256, 384 or 521 for ECDSA).
	// KeySize 是以位为单位的密钥大小。
	KeySize int `json:"keySize" yaml:"keySize" mapstructure:"keySize"`
	// Algorithm selects the signature scheme.
	// Algorithm 选择签名方案。
	Algorithm constants.Algorithm `json:"algorithm" yaml:"algorithm" mapstructure:"algorithm"`
	// HashAlgorithm selects the digest applied to messages before signing.
	// HashAlgorithm 选择签名前应用于消息的摘要算法。
	HashAlgorithm constants.HashAlgorithm `json:"hashAlgorithm" yaml:"hashAlgorithm" mapstructure:"hashAlgorithm"`
	// StorageNamespace isolates this application's key material in the key store.
	// StorageNamespace 在密钥存储中隔离此应用程序的密钥材料。
	StorageNamespace string `json:"storageKey" yaml:"storageKey" mapstructure:"storageKey"`
}

// NewCryptoConfig constructs and validates a CryptoConfig.
func NewCryptoConfig(keySize int, algorithm constants.Algorithm, hash constants.HashAlgorithm, namespace string) (CryptoConfig, error) {
	cfg := CryptoConfig{
		KeySize:          keySize,
		Algorithm:        algorithm,
		HashAlgorithm:    hash,
		StorageNamespace: namespace,
	}
	if err := cfg.Validate(); err != nil {
		return CryptoConfig{}, err
	}
	return cfg, nil
}

// Validate checks that the algorithm, key size, hash and namespace form a usable combination.
func (c CryptoConfig) Validate() error {
	switch c.HashAlgorithm {
	case constants.HashSHA256, constants.HashSHA512:
	default:
		return errors.UnsupportedAlgorithm(string(c.HashAlgorithm))
	}

	switch c.Algorithm {
	case constants.AlgorithmEd25519, constants.AlgorithmSecp256k1:
		if c.KeySize != 256 {
			return errors.UnsupportedKeySize(string(c.Algorithm), c.KeySize)
		}
	case constants.AlgorithmECDSA:
		switch c.KeySize {
		case 256, 384, 521:
		default:
			return errors.UnsupportedKeySize(string(c.Algorithm), c.KeySize)
		}
	default:
		return errors.UnsupportedAlgorithm(string(c.Algorithm))
	}

	ns := strings.TrimSpace(c.StorageNamespace)
	if ns == "" {
		return errors.InvalidConfig("storageKey must not be empty")
	}
	if ns == "." || ns == ".." {
		return errors.InvalidConfig(fmt.Sprintf("storageKey %q is not a valid namespace", c.StorageNamespace))
	}
	if ns != c.StorageNamespace || strings.Contains(ns, constants.StorageKeySeparator) {
		return errors.InvalidConfig(fmt.Sprintf("storageKey %q must not contain whitespace padding or %q", c.StorageNamespace, constants.StorageKeySeparator))
	}
	return nil
}

// ParseCryptoConfigJSON decodes a CryptoConfig document, rejecting unrecognized fields.
func ParseCryptoConfigJSON(data []byte) (CryptoConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg CryptoConfig
	if err := dec.Decode(&cfg); err != nil {
		return CryptoConfig{}, errors.InvalidConfig(err.Error())
	}
	if dec.More() {
		return CryptoConfig{}, errors.InvalidConfig("trailing data after config document")
	}
	if err := cfg.Validate(); err != nil {
		return CryptoConfig{}, err
	}
	return cfg, nil
}
