// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package autherr holds the error kinds shared by every auth component.
// The HTTP layer maps them to status codes with errors.Is.
package autherr

import "errors"

// Input errors (400).
var (
	ErrInvalidInput = errors.New("email and password are required")
	ErrWeakPassword = errors.New("password too short")
	ErrLongPassword = errors.New("password too long")
	ErrInvalidEmail = errors.New("invalid email format")
)

// ErrDuplicateEmail is returned when the email is already registered (409).
var ErrDuplicateEmail = errors.New("email already registered")

// Authentication errors (401).
var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrMissingAuth         = errors.New("missing or invalid authorization header")
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrExpiredRefreshToken = errors.New("refresh token expired")
)

// ErrUserNotFound is returned when a token references a user that no longer exists (404).
var ErrUserNotFound = errors.New("user not found")
