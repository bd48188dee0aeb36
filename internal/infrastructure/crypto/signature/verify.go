package signature

import (
	"crypto/subtle"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/primitive"
	"github.com/turtacn/credcore/pkg/errors"
)

// Check verifies sig over message with publicKey and returns why it failed. The
// digest is recomputed with sig.HashAlgorithm; when sig carries a digest it must
// match the recomputed one. A nil result is only ever produced by a successful
// scheme verification.
// Check 验证签名并返回失败原因。
func Check(sig *models.Signature, message, publicKey []byte) error {
	if sig == nil {
		return errors.MalformedInput("missing signature")
	}
	if len(sig.Bytes) == 0 {
		return errors.MalformedInput("empty signature")
	}
	if len(publicKey) == 0 {
		return errors.MalformedInput("empty public key")
	}
	s, err := schemeFor(sig.Algorithm)
	if err != nil {
		return errors.MalformedInput("unknown signature algorithm").WithCause(err)
	}
	digest, err := primitive.Hash(sig.HashAlgorithm, message)
	if err != nil {
		return errors.MalformedInput("unknown hash algorithm").WithCause(err)
	}
	if len(sig.Digest) > 0 && subtle.ConstantTimeCompare(digest, sig.Digest) != 1 {
		return errors.SignatureMismatch("message digest does not match")
	}
	return s.verify(publicKey, digest, sig.Bytes)
}

// Verify reports whether sig is a valid signature of message under publicKey.
// Malformed input yields false, never an error or a panic.
// Verify 报告签名是否有效；格式错误的输入返回 false。
func Verify(sig *models.Signature, message, publicKey []byte) bool {
	return Check(sig, message, publicKey) == nil
}
