package models

import (
	"time"

	"github.com/turtacn/credcore/pkg/constants"
)

// KeyState is the lifecycle state of a key pair.
// KeyState 是密钥对的生命周期状态。
type KeyState string

const (
	KeyStateUninitialized KeyState = "uninitialized"
	KeyStateGenerated     KeyState = "generated"
	KeyStatePersisted     KeyState = "persisted"
	KeyStateActive        KeyState = "active"
	KeyStateRevoked       KeyState = "revoked"
)

var keyStateTransitions = map[KeyState][]KeyState{
	KeyStateUninitialized: {KeyStateGenerated},
	KeyStateGenerated:     {KeyStatePersisted},
	KeyStatePersisted:     {KeyStateActive, KeyStateRevoked},
	KeyStateActive:        {KeyStateRevoked},
}

// CanTransition reports whether a key may move from s to next.
func (s KeyState) CanTransition(next KeyState) bool {
	for _, allowed := range keyStateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Usable reports whether a key in this state may produce signatures.
func (s KeyState) Usable() bool {
	return s == KeyStatePersisted || s == KeyStateActive
}

// KeyPair holds the material of one signing identity. Once persisted it is owned
// by the key store; the signature engine only holds it for the duration of a
// generate or sign operation.
// KeyPair 保存一个签名身份的密钥材料。
type KeyPair struct {
	// ID is the opaque key identifier, unique within its storage namespace.
	ID string `json:"id"`
	// Algorithm is the scheme the material belongs to.
	Algorithm constants.Algorithm `json:"algorithm"`
	// PublicKey is the encoded public key (see the signature package for encodings).
	PublicKey []byte `json:"public_key"`
	// PrivateKey is the encoded private key. Sensitive.
	PrivateKey []byte `json:"private_key"`
	// State is the lifecycle state.
	State KeyState `json:"state"`
	// CreatedAt is the generation timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy so that stores never alias caller buffers.
func (k *KeyPair) Clone() *KeyPair {
	if k == nil {
		return nil
	}
	c := *k
	c.PublicKey = append([]byte(nil), k.PublicKey...)
	c.PrivateKey = append([]byte(nil), k.PrivateKey...)
	return &c
}

// Wipe zeroes the private key material in place.
func (k *KeyPair) Wipe() {
	if k == nil {
		return
	}
	for i := range k.PrivateKey {
		k.PrivateKey[i] = 0
	}
}
