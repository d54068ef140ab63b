package scheme

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/protocols/proposal"
	"github.com/defistate/dao-state-client-go/protocols/scheme/contributionreward"
	"github.com/defistate/dao-state-client-go/protocols/scheme/genericscheme"
	"github.com/defistate/dao-state-client-go/protocols/scheme/schemeregistrar"
	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownScheme is returned when a scheme's name matches no supported
// kind of proposal scheme.
var ErrUnknownScheme = errors.New("unknown proposal scheme")

// ProposalEncoder turns proposal options into a transaction for one kind of
// scheme, and its receipt back into the created proposal.
type ProposalEncoder interface {
	CreateTransaction(c *arc.Context, scheme common.Address, opts proposal.CreateOptions) (operation.Builder, error)
	CreateTransactionMap(c *arc.Context, scheme common.Address) operation.Projector[*proposal.Proposal]
}

// Kind is a supported proposal scheme.
type Kind string

const (
	KindContributionReward Kind = contributionreward.Name
	KindGenericScheme      Kind = genericscheme.Name
	KindSchemeRegistrar    Kind = schemeregistrar.Name
)

var encoders = map[Kind]ProposalEncoder{
	KindContributionReward: contributionreward.Encoder{},
	KindGenericScheme:      genericscheme.Encoder{},
	KindSchemeRegistrar:    schemeregistrar.Encoder{},
}

// SupportedKinds returns the kinds CreateProposal can encode.
func SupportedKinds() mapset.Set[Kind] {
	kinds := mapset.NewThreadUnsafeSet[Kind]()
	for k := range encoders {
		kinds.Add(k)
	}
	return kinds
}

// ParseKind maps a scheme name to its Kind.
func ParseKind(name string) (Kind, error) {
	k := Kind(name)
	if _, ok := encoders[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
	return k, nil
}

// Encoder returns the proposal encoder of a parsed Kind.
func (k Kind) Encoder() ProposalEncoder {
	return encoders[k]
}
