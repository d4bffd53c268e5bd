// Package crypto provides the cryptographic primitives of the vault.
//
// Encryption uses AES-256-GCM with:
//   - a 32-byte key expanded from the master key via HKDF-SHA256
//   - a 12-byte random nonce per encryption operation
//   - an associated-data label binding each ciphertext to its storage slot
//
// Key derivation uses PBKDF2-HMAC-SHA256 with:
//   - a 32-byte random salt (stored unencrypted)
//   - 210,000 iterations (OWASP minimum recommendation)
//
// Memory safety:
//   - Secret wraps sensitive bytes and zeroes them on Destroy
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto
