package models

import "github.com/turtacn/credcore/pkg/constants"

// Signature is an immutable detached signature over a message digest.
// Signature 是对消息摘要的不可变分离签名。
type Signature struct {
	Algorithm     constants.Algorithm     `json:"algorithm"`
	HashAlgorithm constants.HashAlgorithm `json:"hashAlgorithm"`
	SignerKeyID   string                  `json:"signerKeyId"`
	Digest        []byte                  `json:"digest"`
	Bytes         []byte                  `json:"signature"`
}
