// Package contributionreward encodes ContributionReward proposals.
package contributionreward

import (
	"errors"
	"math/big"

	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/protocols/proposal"
	"github.com/defistate/dao-state-client-go/protocols/scheme/internal/proposing"
	"github.com/ethereum/go-ethereum/common"
)

// Name is the registry name of the scheme.
const Name = "ContributionReward"

const contractABI = `[
  {"type":"function","name":"proposeContributionReward","stateMutability":"nonpayable","inputs":[
    {"name":"_avatar","type":"address"},
    {"name":"_descriptionHash","type":"string"},
    {"name":"_reputationChange","type":"int256"},
    {"name":"_rewards","type":"uint256[5]"},
    {"name":"_externalToken","type":"address"},
    {"name":"_beneficiary","type":"address"}],
   "outputs":[{"name":"","type":"bytes32"}]},
  {"type":"event","name":"NewContributionProposal","anonymous":false,"inputs":[
    {"name":"_avatar","type":"address","indexed":true},
    {"name":"_proposalId","type":"bytes32","indexed":true},
    {"name":"_intVoteInterface","type":"address","indexed":true},
    {"name":"_descriptionHash","type":"string","indexed":false},
    {"name":"_reputationChange","type":"int256","indexed":false},
    {"name":"_rewards","type":"uint256[5]","indexed":false},
    {"name":"_externalToken","type":"address","indexed":false},
    {"name":"_beneficiary","type":"address","indexed":false}]}
]`

var (
	ErrBeneficiaryRequired = errors.New("contribution reward: beneficiary is required")

	contract = proposing.MustParseABI(contractABI)
	// ProposalEvent announces a new proposal.
	ProposalEvent = contract.Events["NewContributionProposal"]
)

// Encoder builds ContributionReward proposal transactions.
type Encoder struct{}

// CreateTransaction encodes proposeContributionReward. The reward vector is
// [native token, eth, external token, period length, periods].
func (Encoder) CreateTransaction(c *arc.Context, scheme common.Address, opts proposal.CreateOptions) (operation.Builder, error) {
	if opts.Beneficiary == "" {
		return nil, ErrBeneficiaryRequired
	}
	reputation := opts.ReputationReward
	if reputation == nil {
		reputation = new(big.Int)
	}
	rewards := [5]*big.Int{
		proposing.Big(opts.NativeTokenReward),
		proposing.Big(opts.EthReward),
		proposing.Big(opts.ExternalTokenReward),
		new(big.Int).SetUint64(opts.PeriodLength),
		new(big.Int).SetUint64(opts.Periods),
	}
	return proposing.Call(c, scheme, contract, "proposeContributionReward",
		common.HexToAddress(opts.DAO),
		opts.DescriptionHash,
		reputation,
		rewards,
		proposing.Address(opts.ExternalTokenAddress),
		common.HexToAddress(opts.Beneficiary),
	), nil
}

// CreateTransactionMap extracts the new proposal from the receipt.
func (Encoder) CreateTransactionMap(c *arc.Context, scheme common.Address) operation.Projector[*proposal.Proposal] {
	return proposing.ProposalFromEvent(c, scheme, ProposalEvent)
}
