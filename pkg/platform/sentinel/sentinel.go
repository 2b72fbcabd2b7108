package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: a uniqueness constraint rejected the write (duplicate coupon
//   code, duplicate external id)
// - ErrInvalidState: entity in wrong state for the requested transition
//   (redeeming a closed coupon, advancing a last-spin timestamp that moved)
// - ErrExpired: session or coupon past its expiry
// - ErrUnavailable: backing store temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
