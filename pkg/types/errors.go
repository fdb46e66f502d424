package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrUserCancelled      = errors.New("user cancelled")
	ErrDeviceDisconnected = errors.New("device disconnected")
	ErrDeviceBusy         = errors.New("device busy")
	ErrChainQuery         = errors.New("chain query error")
	ErrNetwork            = errors.New("network error")
	ErrTimeout            = errors.New("timeout")
	ErrBroadcastRejected  = errors.New("broadcast rejected")

	ErrTransferNotFound = errors.New("transfer not found")
	ErrTransferExists   = errors.New("transfer already exists")
	ErrTerminal         = errors.New("transfer is terminal")
	ErrPhaseInFlight    = errors.New("phase in flight")
	ErrNotEligible      = errors.New("phase not eligible")
	ErrTxHashAlreadySet = errors.New("tx hash already set")
)

// Errorf wraps kind with a formatted message so errors.Is(err, kind) holds.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsSigningError(err error) bool {
	return errors.Is(err, ErrInvalidPassword) ||
		errors.Is(err, ErrUserCancelled) ||
		errors.Is(err, ErrDeviceDisconnected) ||
		errors.Is(err, ErrDeviceBusy)
}

// IsSubmissionFailure reports errors that count against a phase's retry ceiling.
func IsSubmissionFailure(err error) bool {
	return errors.Is(err, ErrChainQuery) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrBroadcastRejected)
}

var rejectionMarkers = []string{
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
	"transaction underpriced",
	"insufficient funds",
	"intrinsic gas too low",
	"exceeds block gas limit",
	"invalid sender",
	"execution reverted",
}

// IsAlreadyKnown reports a node answer meaning the same raw tx is already in its pool.
func IsAlreadyKnown(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

// ClassifyRPCError maps a transport or node error onto the error taxonomy.
func ClassifyRPCError(err error) error {
	if err == nil {
		return nil
	}
	if IsSubmissionFailure(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rejectionMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %w", ErrBroadcastRejected, err)
		}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}
