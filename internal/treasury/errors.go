package treasury

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
)

// ModuleName is the codespace of the treasury error kinds.
const ModuleName = "treasury"

var (
	ErrInvalidAmount         = errorsmod.Register(ModuleName, 2, "invalid amount")
	ErrInvalidVaultReference = errorsmod.Register(ModuleName, 3, "invalid vault reference")
	ErrNoAllocation          = errorsmod.Register(ModuleName, 4, "no allocation")
	ErrInsufficientBalance   = errorsmod.Register(ModuleName, 5, "insufficient balance")
	ErrDivisionByZero        = errorsmod.Register(ModuleName, 6, "division by zero")
	ErrExternalCallFailure   = errorsmod.Register(ModuleName, 7, "external call failed")
	ErrUnauthorized          = errorsmod.Register(ModuleName, 8, "unauthorized")
)

// external marks err as a collaborator failure. Both ErrExternalCallFailure and
// err stay reachable through errors.Is.
func external(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalCallFailure, fmt.Sprintf(format, args...), err)
}
