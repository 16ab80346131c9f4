package domain

import "errors"

var (
	// ErrUnknownFund the fund id is not present in the configuration.
	ErrUnknownFund = errors.New("unknown fund")
	// ErrInsufficientUnits a redemption asked for more units than held.
	ErrInsufficientUnits = errors.New("insufficient units")
	// ErrInsufficientLiquidity the trading venue holds less fiat than the
	// settlement needs. Recoverable: the caller requeues the investment.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrScheduleExists the account already has a non-cancelled SIP schedule.
	ErrScheduleExists = errors.New("schedule already exists for account")
)
