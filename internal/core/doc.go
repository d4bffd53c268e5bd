// Package core ties the vault pieces into one application session.
//
// An App starts locked. Register creates a vault and Unlock opens an
// existing one; both leave the store open until Lock. While unlocked the
// App offers:
//   - Records and Content: read records and their fields
//   - SaveRecord, DeleteRecord, DeleteContent: edit the vault
//   - Reveal and TOTPCode: plaintext values and one-time codes
//   - CheckPassword and CompromisedRecords: common and breached passwords
//   - EnableSync, Upload, Download, RemoteDiff: the remote copy
//
// Download replaces the vault file and leaves the App locked.
package core
