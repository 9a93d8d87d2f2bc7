package domain

import "errors"

var (
	ErrClientNotConnected = errors.New("client not connected")
	ErrNoController       = errors.New("no active controller")
	ErrSessionNotFound    = errors.New("session not found")
	ErrChannelNotOpen     = errors.New("data channel not open")
	ErrMailboxUnavailable = errors.New("mailbox store unavailable")
	ErrBankNotFound       = errors.New("bank slot is empty")
	ErrNoActiveInstrument = errors.New("no active instrument")
)
