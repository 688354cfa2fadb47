package services

import "errors"

// Business-rule failures. Handlers map each to a status and reason code.
var (
	ErrUnauthorized        = errors.New("invalid or expired token")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrAlreadyPaired       = errors.New("user is already in a couple")
	ErrNoCouple            = errors.New("user has no pending couple")
	ErrInvalidKey          = errors.New("pairing key not found")
	ErrKeyAlreadyUsed      = errors.New("pairing key already used")
	ErrKeyExpired          = errors.New("pairing key expired")
	ErrSelfPairing         = errors.New("cannot pair with yourself")
	ErrNotPaired           = errors.New("user is not paired")
	ErrNoQuestionAvailable = errors.New("no daily question available")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrAnswerNotFound      = errors.New("answer not found")
	ErrMissingText         = errors.New("answer text is required")
	ErrInvalidMessage      = errors.New("invalid message")
	ErrMediaUnavailable    = errors.New("media uploads are not configured")
)
