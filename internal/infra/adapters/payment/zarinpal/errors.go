package zarinpal

import (
	"errors"

	"iranpay/internal/domain"
)

// Result codes treated as success. 101 means the session was already verified.
const (
	CodeOK              = 100
	CodeAlreadyVerified = 101
)

var errorTable = domain.ErrorTable{
	-9:  {Kind: domain.ErrRemoteValidation, Message: "Validation error"},
	-10: {Kind: domain.ErrTerminal, Message: "Terminal is not valid. Check merchant_id or IP address."},
	-11: {Kind: domain.ErrTerminal, Message: "Terminal is not active. Contact support."},
	-12: {Kind: domain.ErrRateLimited, Message: "Too many attempts. Please try again later."},
	-15: {Kind: domain.ErrTerminal, Message: "Terminal is suspended. Contact support."},
	-16: {Kind: domain.ErrTerminal, Message: "User level is below silver. Contact support."},
	-17: {Kind: domain.ErrTerminal, Message: "User is restricted at Blue level. Contact support."},
	-18: {Kind: domain.ErrTerminal, Message: "Referrer address mismatch. Domain not allowed."},
	-19: {Kind: domain.ErrTerminal, Message: "Transactions are disabled for this terminal."},
	-30: {Kind: domain.ErrWage, Message: "Terminal not allowed to use floating wages."},
	-31: {Kind: domain.ErrWage, Message: "No default bank account. Add one in panel."},
	-32: {Kind: domain.ErrWage, Message: "Wage amount exceeds total transaction amount."},
	-33: {Kind: domain.ErrWage, Message: "Invalid wage percentage."},
	-34: {Kind: domain.ErrWage, Message: "Fixed wage exceeds total transaction amount."},
	-35: {Kind: domain.ErrWage, Message: "Too many wage recipients."},
	-36: {Kind: domain.ErrWage, Message: "Minimum wage amount is 10,000 Rials."},
	-37: {Kind: domain.ErrWage, Message: "One or more IBANs are inactive."},
	-38: {Kind: domain.ErrWage, Message: "IBAN not defined properly in Shaparak."},
	-39: {Kind: domain.ErrWage, Message: "General wage error. Contact support."},
	-40: {Kind: domain.ErrRemoteValidation, Message: "Invalid extra params. `expire_in` is not valid."},
	-41: {Kind: domain.ErrAmount, Message: "Maximum amount is 100,000,000 tomans."},
	-50: {Kind: domain.ErrAmount, Message: "Amount mismatch during verification."},
	-51: {Kind: domain.ErrNotSuccessful, Message: "Unsuccessful payment session."},
	-52: {Kind: domain.ErrGatewayInternal, Message: "Unexpected error. Contact support."},
	-53: {Kind: domain.ErrSession, Message: "Session does not belong to this merchant."},
	-54: {Kind: domain.ErrSession, Message: "Invalid authority."},
	-55: {Kind: domain.ErrSession, Message: "Manual payment request not found."},
	-60: {Kind: domain.ErrReverse, Message: "Cannot reverse session with bank."},
	-61: {Kind: domain.ErrReverse, Message: "Transaction not successful or already reversed."},
	-62: {Kind: domain.ErrReverse, Message: "Terminal IP restriction not active."},
	-63: {Kind: domain.ErrReverse, Message: "Reverse timeout expired (30 minutes)."},
}

func isSuccess(code int) bool {
	return code == CodeOK || code == CodeAlreadyVerified
}

// mapError maps a failing code through the table; status is the HTTP status when non-2xx.
func mapError(code int, message string, status int) error {
	err := errorTable.Map(Name, code, message)
	var ge *domain.GatewayError
	if errors.As(err, &ge) {
		ge.HTTPStatus = status
	}
	return err
}
