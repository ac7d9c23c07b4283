package certs

import "errors"

var (
	// ErrInvalidValidity is returned when validity days are outside the allowed range
	// or the issuer has expired.
	ErrInvalidValidity = errors.New("invalid certificate validity")

	// ErrInvalidPassphrase is returned when a private key passphrase has an invalid length.
	ErrInvalidPassphrase = errors.New("invalid private key passphrase")

	// ErrInvalidSubject is returned when a subject field has an invalid length.
	ErrInvalidSubject = errors.New("invalid certificate subject")

	// ErrUnknownIssuer is returned when the issuer ID is not in the authority.
	ErrUnknownIssuer = errors.New("unknown issuer certificate")

	// ErrDuplicateID is returned when a certificate ID is already in use.
	ErrDuplicateID = errors.New("duplicate certificate ID")

	// ErrUnknownCertificate is returned when a certificate ID is not in the authority.
	ErrUnknownCertificate = errors.New("unknown certificate")
)
