package models

import "github.com/turtacn/credcore/pkg/constants"

// DerivationParams records how a DerivedKey was produced.
type DerivationParams struct {
	Function   string                  `json:"function"`
	Hash       constants.HashAlgorithm `json:"hash"`
	Iterations int                     `json:"iterations,omitempty"`
	SaltLength int                     `json:"saltLength"`
	Info       string                  `json:"info,omitempty"`
}

// DerivedKey is ephemeral output of HKDF or PBKDF2. It is never persisted as-is.
// DerivedKey 是 HKDF 或 PBKDF2 的临时输出，从不按原样持久化。
type DerivedKey struct {
	KeyMaterial []byte
	Length      int
	Params      DerivationParams
}

// Wipe zeroes the key material in place.
func (d *DerivedKey) Wipe() {
	if d == nil {
		return
	}
	for i := range d.KeyMaterial {
		d.KeyMaterial[i] = 0
	}
}
