// Package scheme reads the governance schemes registered to DAOs and submits
// proposals through them.
package scheme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/pkg/maybe"
	"github.com/defistate/dao-state-client-go/protocols/proposal"
	"github.com/defistate/dao-state-client-go/query"
	"github.com/defistate/dao-state-client-go/streams/live"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const fields = `    id
    address
    name
    dao { id }
    canDelegateCall
    canRegisterSchemes
    canUpgradeController
    canManageGlobalConstraints
    paramsHash`

var addressKeys = []string{"address", "dao"}

// StaticState holds the identity facts of a scheme.
type StaticState struct {
	ID         string
	Name       string
	Address    string
	DAO        string
	ParamsHash string
}

// State is the full state of a scheme, including the controller permissions
// granted to it.
type State struct {
	StaticState
	CanDelegateCall            bool
	CanRegisterSchemes         bool
	CanUpgradeController       bool
	CanManageGlobalConstraints bool
}

type record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Address is null for schemes registered without a known contract.
	Address string `json:"address"`
	DAO     struct {
		ID string `json:"id"`
	} `json:"dao"`
	CanDelegateCall            bool   `json:"canDelegateCall"`
	CanRegisterSchemes         bool   `json:"canRegisterSchemes"`
	CanUpgradeController       bool   `json:"canUpgradeController"`
	CanManageGlobalConstraints bool   `json:"canManageGlobalConstraints"`
	ParamsHash                 string `json:"paramsHash"`
}

// Scheme is a handle on a scheme registered at a DAO.
type Scheme struct {
	id      string
	context *arc.Context

	mu          sync.Mutex
	staticState maybe.Maybe[StaticState]
}

// New creates a handle for the scheme with the given id.
func New(id string, c *arc.Context) *Scheme {
	return &Scheme{id: arc.NormalizeID(id), context: c}
}

// NewFromState creates a handle with its static state already known.
func NewFromState(s StaticState, c *arc.Context) *Scheme {
	s.ID = arc.NormalizeID(s.ID)
	return &Scheme{id: s.ID, context: c, staticState: maybe.Some(s)}
}

func (s *Scheme) ID() string {
	return s.id
}

// Search watches the schemes matching opts.
//
// A name filter is applied to the resolved name on the client: the subgraph
// does not index a name for every scheme, so it cannot filter on it.
func Search(c *arc.Context, opts query.Options, fetch query.FetchPolicy) (*live.Query[[]*Scheme], error) {
	var name string
	pushed := opts
	pushed.Where = make(query.Where, len(opts.Where))
	for k, v := range opts.Where {
		if k == "name" {
			if v != nil {
				name = fmt.Sprint(v)
			}
			continue
		}
		pushed.Where[k] = v
	}

	q, err := query.Collection("controllerSchemes", pushed, fields, addressKeys...)
	if err != nil {
		return nil, err
	}
	return arc.ObservableList(c, query.Request{Query: q, FetchPolicy: fetch}, "controllerSchemes",
		func(_ context.Context, raw []byte) (*Scheme, bool, error) {
			st, err := decode(c, raw)
			if err != nil {
				return nil, false, err
			}
			if name != "" && st.Name != name {
				return nil, true, nil
			}
			return NewFromState(st.StaticState, c), false, nil
		}), nil
}

// State watches the scheme's current state.
func (s *Scheme) State() *live.Query[State] {
	q := query.Single("controllerScheme", s.id, fields)
	return arc.ObservableObject(s.context, query.Request{Query: q}, "controllerScheme",
		func(_ context.Context, raw []byte) (State, error) {
			if raw == nil {
				return State{}, fmt.Errorf("could not find a scheme with id %s: %w", s.id, arc.ErrNotFound)
			}
			return decode(s.context, raw)
		})
}

// FetchStaticState returns the cached static state, fetching it on first use.
// Concurrent first calls may each query the indexer; the first result stored
// is the one every caller sees afterwards.
func (s *Scheme) FetchStaticState(ctx context.Context) (StaticState, error) {
	s.mu.Lock()
	st, ok := s.staticState.Get()
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	state, err := live.First(ctx, s.State())
	if err != nil {
		return StaticState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.staticState.Get(); ok {
		return st, nil
	}
	s.staticState = maybe.Some(state.StaticState)
	return state.StaticState, nil
}

// CreateProposal returns an operation that submits a new proposal through this
// scheme. Options are checked immediately; the scheme's static state is only
// fetched when the operation is sent. Its resolved name selects the encoder,
// and an unsupported name fails with ErrUnknownScheme before anything reaches
// the ledger.
func (s *Scheme) CreateProposal(opts proposal.CreateOptions) (*operation.Operation[*proposal.Proposal], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		project operation.Projector[*proposal.Proposal]
	)
	build := func(ctx context.Context) (*types.Transaction, error) {
		encoder, address, err := s.encoder(ctx)
		if err != nil {
			return nil, err
		}
		inner, err := encoder.CreateTransaction(s.context, address, opts)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		project = encoder.CreateTransactionMap(s.context, address)
		mu.Unlock()
		return inner(ctx)
	}
	mapReceipt := func(receipt *types.Receipt) (*proposal.Proposal, error) {
		mu.Lock()
		p := project
		mu.Unlock()
		if p == nil {
			return nil, errors.New("proposal transaction was never built")
		}
		return p(receipt)
	}
	return arc.SendTransaction(s.context, build, mapReceipt), nil
}

// encoder resolves the proposal encoder and contract address of the scheme.
func (s *Scheme) encoder(ctx context.Context) (ProposalEncoder, common.Address, error) {
	st, err := s.FetchStaticState(ctx)
	if err != nil {
		return nil, common.Address{}, err
	}
	kind, err := ParseKind(st.Name)
	if err != nil {
		return nil, common.Address{}, err
	}
	if !common.IsHexAddress(st.Address) {
		return nil, common.Address{}, fmt.Errorf("scheme %s: %w: %q", s.id, query.ErrInvalidAddress, st.Address)
	}
	return kind.Encoder(), common.HexToAddress(st.Address), nil
}

// Proposals watches the proposals submitted through this scheme.
func (s *Scheme) Proposals(opts query.Options, fetch query.FetchPolicy) (*live.Query[[]*proposal.Proposal], error) {
	where := make(query.Where, len(opts.Where)+1)
	for k, v := range opts.Where {
		where[k] = v
	}
	where["scheme"] = s.id
	opts.Where = where
	return proposal.Search(s.context, opts, fetch)
}

func decode(c *arc.Context, raw []byte) (State, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return State{}, fmt.Errorf("decode scheme: %w", err)
	}
	return State{
		StaticState: StaticState{
			ID:         r.ID,
			Name:       resolveName(c, r),
			Address:    r.Address,
			DAO:        r.DAO.ID,
			ParamsHash: r.ParamsHash,
		},
		CanDelegateCall:            r.CanDelegateCall,
		CanRegisterSchemes:         r.CanRegisterSchemes,
		CanUpgradeController:       r.CanUpgradeController,
		CanManageGlobalConstraints: r.CanManageGlobalConstraints,
	}, nil
}

// resolveName falls back to the contract registry when the subgraph has no
// name. An unknown contract leaves the name empty.
func resolveName(c *arc.Context, r record) string {
	if r.Name != "" {
		return r.Name
	}
	info, err := c.GetContractInfo(r.Address)
	if err != nil {
		c.Logger().Debug("Scheme name not resolved", "address", r.Address, "error", err)
		return ""
	}
	return info.Name
}
