// Package schemeregistrar encodes SchemeRegistrar proposals to register a new
// scheme with a DAO or to remove an existing one.
package schemeregistrar

import (
	"errors"
	"fmt"

	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/protocols/proposal"
	"github.com/defistate/dao-state-client-go/protocols/scheme/internal/proposing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const Name = "SchemeRegistrar"

const contractABI = `[
  {"type":"function","name":"proposeScheme","stateMutability":"nonpayable","inputs":[
    {"name":"_avatar","type":"address"},
    {"name":"_scheme","type":"address"},
    {"name":"_parametersHash","type":"bytes32"},
    {"name":"_permissions","type":"bytes4"},
    {"name":"_descriptionHash","type":"string"}],
   "outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"proposeToRemoveScheme","stateMutability":"nonpayable","inputs":[
    {"name":"_avatar","type":"address"},
    {"name":"_scheme","type":"address"},
    {"name":"_descriptionHash","type":"string"}],
   "outputs":[{"name":"","type":"bytes32"}]},
  {"type":"event","name":"NewSchemeProposal","anonymous":false,"inputs":[
    {"name":"_avatar","type":"address","indexed":true},
    {"name":"_proposalId","type":"bytes32","indexed":true},
    {"name":"_intVoteInterface","type":"address","indexed":true},
    {"name":"_scheme","type":"address","indexed":false},
    {"name":"_parametersHash","type":"bytes32","indexed":false},
    {"name":"_permissions","type":"bytes4","indexed":false},
    {"name":"_descriptionHash","type":"string","indexed":false}]},
  {"type":"event","name":"RemoveSchemeProposal","anonymous":false,"inputs":[
    {"name":"_avatar","type":"address","indexed":true},
    {"name":"_proposalId","type":"bytes32","indexed":true},
    {"name":"_intVoteInterface","type":"address","indexed":true},
    {"name":"_scheme","type":"address","indexed":false},
    {"name":"_descriptionHash","type":"string","indexed":false}]}
]`

var (
	ErrUnknownType    = errors.New("scheme registrar: unknown proposal type")
	ErrSchemeRequired = errors.New("scheme registrar: scheme address is required")

	contract            = proposing.MustParseABI(contractABI)
	AddProposalEvent    = contract.Events["NewSchemeProposal"]
	RemoveProposalEvent = contract.Events["RemoveSchemeProposal"]
)

type Encoder struct{}

// CreateTransaction encodes proposeScheme for TypeSchemeRegistrarAdd and
// proposeToRemoveScheme for TypeSchemeRegistrarRemove.
func (Encoder) CreateTransaction(c *arc.Context, scheme common.Address, opts proposal.CreateOptions) (operation.Builder, error) {
	avatar := common.HexToAddress(opts.DAO)

	switch opts.Type {
	case proposal.TypeSchemeRegistrarAdd:
		if opts.SchemeToRegister == "" {
			return nil, ErrSchemeRequired
		}
		permissions, err := permissionBits(opts.Permissions)
		if err != nil {
			return nil, err
		}
		return proposing.Call(c, scheme, contract, "proposeScheme",
			avatar,
			common.HexToAddress(opts.SchemeToRegister),
			common.HexToHash(opts.ParametersHash),
			permissions,
			opts.DescriptionHash,
		), nil

	case proposal.TypeSchemeRegistrarRemove:
		if opts.SchemeToRemove == "" {
			return nil, ErrSchemeRequired
		}
		return proposing.Call(c, scheme, contract, "proposeToRemoveScheme",
			avatar,
			common.HexToAddress(opts.SchemeToRemove),
			opts.DescriptionHash,
		), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, opts.Type)
	}
}

// CreateTransactionMap accepts either registrar event; a receipt carries
// only the one matching the submitted call.
func (Encoder) CreateTransactionMap(c *arc.Context, scheme common.Address) operation.Projector[*proposal.Proposal] {
	add := proposing.ProposalFromEvent(c, scheme, AddProposalEvent)
	remove := proposing.ProposalFromEvent(c, scheme, RemoveProposalEvent)
	return func(receipt *types.Receipt) (*proposal.Proposal, error) {
		if p, err := add(receipt); err == nil {
			return p, nil
		}
		return remove(receipt)
	}
}

// permissionBits decodes a bytes4 permission mask such as "0x0000001f".
func permissionBits(s string) ([4]byte, error) {
	var out [4]byte
	if s == "" {
		return out, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, fmt.Errorf("scheme registrar: permissions %q: %w", s, err)
	}
	if len(b) > 4 {
		return out, fmt.Errorf("scheme registrar: permissions %q longer than 4 bytes", s)
	}
	copy(out[4-len(b):], b)
	return out, nil
}
