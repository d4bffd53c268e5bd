// Package storage is the encrypted vault file, built on BBolt.
//
// Database structure uses five buckets:
//   - config: KDF parameters, passphrase verifier, timestamps, vault id (unencrypted)
//   - settings: name/value settings such as sync credentials
//   - records: Record rows keyed by big-endian id
//   - content: Content rows keyed by big-endian id, each naming its record
//   - breach: breach cache rows keyed by an HMAC of the password hash
//
// Values outside config are AES-256-GCM encrypted with a key expanded from
// the passphrase, and bound to their bucket and key so rows cannot be
// swapped. A wrong passphrase and an unreadable file both surface as
// ErrWrongPassword.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package storage
