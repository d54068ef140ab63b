// Package proposing holds the helpers shared by the proposal encoders.
package proposing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/protocols/proposal"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// ErrNoProposalEvent is returned when a mined receipt lacks the event that
// announces the new proposal.
var ErrNoProposalEvent = errors.New("receipt has no proposal event")

// MustParseABI parses a contract ABI known at compile time.
func MustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("proposing: bad abi: %v", err))
	}
	return parsed
}

// Call returns a Builder that packs method with args when the operation
// starts and sends it to the scheme.
func Call(c *arc.Context, scheme common.Address, contract abi.ABI, method string, args ...any) operation.Builder {
	return func(ctx context.Context) (*types.Transaction, error) {
		data, err := contract.Pack(method, args...)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		return c.Call(scheme, data, nil)(ctx)
	}
}

// ProposalFromEvent returns a Projector that reads the proposal id from the
// second indexed argument of event emitted by scheme.
func ProposalFromEvent(c *arc.Context, scheme common.Address, event abi.Event) operation.Projector[*proposal.Proposal] {
	return func(receipt *types.Receipt) (*proposal.Proposal, error) {
		for _, log := range receipt.Logs {
			if log.Address != scheme || len(log.Topics) < 3 || log.Topics[0] != event.ID {
				continue
			}
			return proposal.New(proposal.IDFromTopic(log.Topics[2]), c), nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNoProposalEvent, event.Name)
	}
}

// Big converts an optional amount to the *big.Int expected by the ABI packer.
func Big(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// Address converts an optional hex address.
func Address(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}
