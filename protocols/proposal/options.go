package proposal

import (
	"fmt"
	"math/big"

	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
)

// validate is a package-level singleton; validators cache struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Types of SchemeRegistrar proposals.
const (
	TypeSchemeRegistrarAdd    = "SchemeRegistrarAdd"
	TypeSchemeRegistrarRemove = "SchemeRegistrarRemove"
)

// CreateOptions describes a proposal to create. Which fields apply depends on
// the scheme the proposal is submitted to.
type CreateOptions struct {
	// DAO is the avatar address of the organization.
	DAO             string `validate:"required,eth_addr"`
	DescriptionHash string

	// ContributionReward
	Beneficiary          string `validate:"omitempty,eth_addr"`
	ReputationReward     *big.Int
	NativeTokenReward    *uint256.Int
	EthReward            *uint256.Int
	ExternalTokenReward  *uint256.Int
	ExternalTokenAddress string `validate:"omitempty,eth_addr"`
	PeriodLength         uint64
	Periods              uint64

	// GenericScheme
	CallData []byte
	Value    *uint256.Int

	// SchemeRegistrar
	Type             string `validate:"omitempty,oneof=SchemeRegistrarAdd SchemeRegistrarRemove"`
	SchemeToRegister string `validate:"omitempty,eth_addr"`
	ParametersHash   string `validate:"omitempty,hexadecimal"`
	Permissions      string `validate:"omitempty,hexadecimal"`
	SchemeToRemove   string `validate:"omitempty,eth_addr"`
}

// Validate checks the fields shared by every scheme.
func (o *CreateOptions) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("proposal options: %w", err)
	}
	return nil
}
