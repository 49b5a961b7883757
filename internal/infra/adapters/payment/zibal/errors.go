package zibal

import "iranpay/internal/domain"

// ResultOK is the only successful Zibal result code.
const ResultOK = 100

var errorTable = domain.ErrorTable{
	102: {Kind: domain.ErrTerminal, Message: "Merchant not found."},
	103: {Kind: domain.ErrTerminal, Message: "Merchant is inactive."},
	104: {Kind: domain.ErrTerminal, Message: "Invalid merchant."},
	105: {Kind: domain.ErrAmount, Message: "Amount must be greater than 1,000 IRR."},
	106: {Kind: domain.ErrRemoteValidation, Message: "Invalid callback URL."},
	113: {Kind: domain.ErrAmount, Message: "Transaction amount exceeds the limit."},
	114: {Kind: domain.ErrRemoteValidation, Message: "Invalid national code."},
	201: {Kind: domain.ErrAlreadyConfirmed, Message: "Already confirmed."},
	202: {Kind: domain.ErrNotSuccessful, Message: "Payment order is not successful or unpaid."},
	203: {Kind: domain.ErrSession, Message: "Invalid track ID."},
}

// Payment statuses reported by verify, inquiry and the lazy callback.
const (
	StatusPending        = -1
	StatusInternalError  = -2
	StatusPaidVerified   = 1
	StatusPaidUnverified = 2
	StatusCanceled       = 3
	StatusInvalidCard    = 4
	StatusNoBalance      = 5
	StatusWrongPassword  = 6
)
