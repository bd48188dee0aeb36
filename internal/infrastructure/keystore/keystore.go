// Package keystore contains the in-process pieces of the key store adapter: the
// storage key scheme, a per-key lock, an in-memory store and the at-rest sealing
// decorator that wraps any other backend.
package keystore

import (
	"strings"
	"unicode"

	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// StorageKey joins a storage namespace and a key id into the address used by every
// KeyStore backend. Neither part may contain the separator, so the address always
// splits back into exactly one namespace and one key id.
//
// StorageKey 将存储命名空间与密钥 ID 拼接为各后端使用的地址。
func StorageKey(namespace, keyID string) (string, error) {
	if reason := checkSegment(namespace); reason != "" {
		return "", errors.MalformedInput("invalid storage namespace: " + reason)
	}
	if keyID == "" {
		return "", errors.MalformedInput("key id must not be empty")
	}
	if reason := checkSegment(keyID); reason != "" {
		return "", errors.MalformedInput("invalid key id: "+reason).WithMetadata("key_id", keyID)
	}
	return namespace + constants.StorageKeySeparator + keyID, nil
}

// SplitStorageKey is the inverse of StorageKey. It reports false for any address
// StorageKey could not have produced.
func SplitStorageKey(storageKey string) (namespace, keyID string, ok bool) {
	namespace, keyID, ok = strings.Cut(storageKey, constants.StorageKeySeparator)
	if !ok || checkSegment(namespace) != "" || checkSegment(keyID) != "" {
		return "", "", false
	}
	return namespace, keyID, true
}

// CheckStorageKey is used by backends that map the address onto a hierarchical
// path (Vault) to refuse anything that could resolve outside its namespace.
func CheckStorageKey(storageKey string) error {
	if _, _, ok := SplitStorageKey(storageKey); !ok {
		return errors.MalformedInput("invalid storage key").WithMetadata("storage_key", storageKey)
	}
	return nil
}

// checkSegment returns why s cannot be one half of a storage key, or "".
func checkSegment(s string) string {
	switch {
	case s == "":
		return "empty"
	case s == "." || s == "..":
		return "relative path segment"
	case strings.Contains(s, constants.StorageKeySeparator), strings.Contains(s, `\`):
		return "contains a path separator"
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "contains a control character"
		}
	}
	return ""
}
