// Package genericscheme encodes GenericScheme proposals, which ask the DAO to
// perform an arbitrary call through its avatar.
package genericscheme

import (
	"errors"

	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/protocols/proposal"
	"github.com/defistate/dao-state-client-go/protocols/scheme/internal/proposing"
	"github.com/ethereum/go-ethereum/common"
)

const Name = "GenericScheme"

const contractABI = `[
  {"type":"function","name":"proposeCall","stateMutability":"nonpayable","inputs":[
    {"name":"_avatar","type":"address"},
    {"name":"_callData","type":"bytes"},
    {"name":"_value","type":"uint256"},
    {"name":"_descriptionHash","type":"string"}],
   "outputs":[{"name":"","type":"bytes32"}]},
  {"type":"event","name":"NewCallProposal","anonymous":false,"inputs":[
    {"name":"_avatar","type":"address","indexed":true},
    {"name":"_proposalId","type":"bytes32","indexed":true},
    {"name":"_callData","type":"bytes","indexed":false},
    {"name":"_value","type":"uint256","indexed":false},
    {"name":"_descriptionHash","type":"string","indexed":false}]}
]`

var (
	ErrCallDataRequired = errors.New("generic scheme: call data is required")

	contract      = proposing.MustParseABI(contractABI)
	ProposalEvent = contract.Events["NewCallProposal"]
)

type Encoder struct{}

func (Encoder) CreateTransaction(c *arc.Context, scheme common.Address, opts proposal.CreateOptions) (operation.Builder, error) {
	if len(opts.CallData) == 0 {
		return nil, ErrCallDataRequired
	}
	return proposing.Call(c, scheme, contract, "proposeCall",
		common.HexToAddress(opts.DAO),
		opts.CallData,
		proposing.Big(opts.Value),
		opts.DescriptionHash,
	), nil
}

func (Encoder) CreateTransactionMap(c *arc.Context, scheme common.Address) operation.Projector[*proposal.Proposal] {
	return proposing.ProposalFromEvent(c, scheme, ProposalEvent)
}
