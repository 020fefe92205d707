package domain

import "errors"

var (
	ErrInvalidIdentity   = errors.New("invalid identity")
	ErrDuplicateIdentity = errors.New("duplicate identity")
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrPeerBusy          = errors.New("peer busy")
	ErrSelfCall          = errors.New("self call")
	ErrAlreadyInCall     = errors.New("already in a call")
	ErrMediaEngine       = errors.New("media engine error")
	ErrMalformedMessage  = errors.New("malformed message")
)
