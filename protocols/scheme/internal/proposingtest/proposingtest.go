// Package proposingtest builds receipt logs for testing proposal encoders.
package proposingtest

import (
	"github.com/defistate/dao-state-client-go/protocols/proposal"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ProposalLog builds the log a scheme emits for a new proposal. Non-indexed
// event data is left empty.
func ProposalLog(scheme common.Address, event abi.Event, avatar common.Address, id proposal.ID) *types.Log {
	return &types.Log{
		Address: scheme,
		Topics:  []common.Hash{event.ID, common.BytesToHash(avatar.Bytes()), id.Hash()},
	}
}
