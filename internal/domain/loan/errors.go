package loan

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by loan operations wraps exactly one of them.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrState         = errors.New("state error")
	ErrTransfer      = errors.New("transfer failure")
)

var (
	ErrNotFound = errors.New("loan not found")

	ErrInvalidAmount      = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrInvalidMaxLenders  = fmt.Errorf("%w: max lenders out of range", ErrValidation)
	ErrLenderCapReached   = fmt.Errorf("%w: lender cap reached", ErrValidation)
	ErrCollateralCap      = fmt.Errorf("%w: collateral cap reached", ErrValidation)
	ErrWrongPayment       = fmt.Errorf("%w: payment does not match the amount due", ErrValidation)
	ErrInsufficientFee    = fmt.Errorf("%w: payment below required fee", ErrValidation)
	ErrInvalidExtension   = fmt.Errorf("%w: additional time must be positive", ErrValidation)
	ErrExtensionTooLong   = fmt.Errorf("%w: extension exceeds max duration", ErrValidation)
	ErrInvalidCollateral  = fmt.Errorf("%w: invalid collateral", ErrValidation)
	ErrNotBorrower        = fmt.Errorf("%w: caller is not the borrower", ErrAuthorization)
	ErrNotLender          = fmt.Errorf("%w: caller is not a lender", ErrAuthorization)
	ErrLoanGone           = fmt.Errorf("%w: loan has no borrower", ErrAuthorization)
	ErrAlreadyFilled      = fmt.Errorf("%w: loan already filled", ErrState)
	ErrNotFilled          = fmt.Errorf("%w: loan not filled", ErrState)
	ErrAlreadyRepaid      = fmt.Errorf("%w: loan already repaid", ErrState)
	ErrAlreadySeized      = fmt.Errorf("%w: collateral already seized", ErrState)
	ErrDeadlinePassed     = fmt.Errorf("%w: loan deadline has passed", ErrState)
	ErrDeadlineNotReached = fmt.Errorf("%w: loan deadline not reached", ErrState)
	ErrUnpriced           = fmt.Errorf("%w: collateral cannot be valued", ErrState)
	ErrReentrant          = fmt.Errorf("%w: reentrant call", ErrState)
)

// TransferError wraps an adapter failure into the ErrTransfer class.
func TransferError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransfer, what, err)
}
