package storage

import "errors"

var (
	// ErrWrongPassword is also returned for a corrupt or foreign file.
	ErrWrongPassword     = errors.New("wrong password")
	ErrEmptyPassphrase   = errors.New("passphrase cannot be empty")
	ErrIO                = errors.New("vault i/o failure")
	ErrLocked            = errors.New("vault is in use by another process")
	ErrClosed            = errors.New("vault is closed")
	ErrNotInitialized    = errors.New("vault not initialized")
	ErrCorruptRow        = errors.New("corrupt row")
	ErrRecordNotFound    = errors.New("record not found")
	ErrContentNotFound   = errors.New("content not found")
	ErrSettingNotFound   = errors.New("setting not found")
	ErrContentHasNoValue = errors.New("content has no value")
)
