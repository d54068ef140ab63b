// Package proposal reads governance proposals from the DAO subgraph.
package proposal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/pkg/maybe"
	"github.com/defistate/dao-state-client-go/query"
	"github.com/defistate/dao-state-client-go/streams/live"
	"github.com/holiman/uint256"
)

const fields = `    id
    dao { id }
    scheme { id }
    proposer
    stage
    descriptionHash
    createdAt
    executedAt
    votesFor
    votesAgainst`

// addressKeys are the filter fields holding account addresses.
var addressKeys = []string{"dao", "proposer"}

// StaticState holds the identity facts of a proposal.
type StaticState struct {
	ID              ID
	DAO             string
	Scheme          string
	Proposer        string
	DescriptionHash string
	CreatedAt       time.Time
}

// State is the full, time-varying state of a proposal.
type State struct {
	StaticState
	Stage        string
	VotesFor     *uint256.Int
	VotesAgainst *uint256.Int
	// ExecutedAt is zero until the proposal is executed.
	ExecutedAt time.Time
}

type record struct {
	ID              string `json:"id"`
	DAO             ref    `json:"dao"`
	Scheme          *ref   `json:"scheme"`
	Proposer        string `json:"proposer"`
	Stage           string `json:"stage"`
	DescriptionHash string `json:"descriptionHash"`
	CreatedAt       string `json:"createdAt"`
	ExecutedAt      string `json:"executedAt"`
	VotesFor        string `json:"votesFor"`
	VotesAgainst    string `json:"votesAgainst"`
}

type ref struct {
	ID string `json:"id"`
}

// Proposal is a handle on a single proposal.
type Proposal struct {
	id      ID
	context *arc.Context

	mu          sync.Mutex
	staticState maybe.Maybe[StaticState]
}

// New creates a handle for id.
func New(id ID, c *arc.Context) *Proposal {
	return &Proposal{id: id, context: c}
}

// NewFromString parses a hex id and creates a handle for it.
func NewFromString(id string, c *arc.Context) (*Proposal, error) {
	parsed, err := ParseID(id)
	if err != nil {
		return nil, fmt.Errorf("proposal id %q: %w", id, err)
	}
	return New(parsed, c), nil
}

// NewFromState creates a handle with its static state already known.
func NewFromState(s StaticState, c *arc.Context) *Proposal {
	return &Proposal{id: s.ID, context: c, staticState: maybe.Some(s)}
}

func (p *Proposal) ID() ID {
	return p.id
}

// Search watches proposals matching opts.
func Search(c *arc.Context, opts query.Options, fetch query.FetchPolicy) (*live.Query[[]*Proposal], error) {
	q, err := query.Collection("proposals", opts, fields, addressKeys...)
	if err != nil {
		return nil, err
	}
	return arc.ObservableList(c, query.Request{Query: q, FetchPolicy: fetch}, "proposals",
		func(_ context.Context, raw []byte) (*Proposal, bool, error) {
			s, err := decode(raw)
			if err != nil {
				return nil, false, err
			}
			return NewFromState(s.StaticState, c), false, nil
		}), nil
}

// State watches the proposal's current state.
func (p *Proposal) State() *live.Query[State] {
	q := query.Single("proposal", p.id.String(), fields)
	return arc.ObservableObject(p.context, query.Request{Query: q}, "proposal",
		func(_ context.Context, raw []byte) (State, error) {
			if raw == nil {
				return State{}, fmt.Errorf("could not find a proposal with id %s: %w", p.id, arc.ErrNotFound)
			}
			return decode(raw)
		})
}

// FetchStaticState returns the cached static state, fetching it on first use.
func (p *Proposal) FetchStaticState(ctx context.Context) (StaticState, error) {
	p.mu.Lock()
	s, ok := p.staticState.Get()
	p.mu.Unlock()
	if ok {
		return s, nil
	}

	state, err := live.First(ctx, p.State())
	if err != nil {
		return StaticState{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// a concurrent fetch may have stored first
	if s, ok := p.staticState.Get(); ok {
		return s, nil
	}
	p.staticState = maybe.Some(state.StaticState)
	return state.StaticState, nil
}

func decode(raw []byte) (State, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return State{}, fmt.Errorf("decode proposal: %w", err)
	}
	id, err := ParseID(r.ID)
	if err != nil {
		return State{}, fmt.Errorf("decode proposal id: %w", err)
	}
	createdAt, err := arc.ParseTimestamp(r.CreatedAt)
	if err != nil {
		return State{}, err
	}
	executedAt, err := arc.ParseTimestamp(r.ExecutedAt)
	if err != nil {
		return State{}, err
	}
	votesFor, err := arc.ParseAmount(r.VotesFor)
	if err != nil {
		return State{}, err
	}
	votesAgainst, err := arc.ParseAmount(r.VotesAgainst)
	if err != nil {
		return State{}, err
	}

	s := State{
		StaticState: StaticState{
			ID:              id,
			DAO:             r.DAO.ID,
			Proposer:        r.Proposer,
			DescriptionHash: r.DescriptionHash,
			CreatedAt:       createdAt,
		},
		Stage:        r.Stage,
		VotesFor:     votesFor,
		VotesAgainst: votesAgainst,
		ExecutedAt:   executedAt,
	}
	if r.Scheme != nil {
		s.Scheme = r.Scheme.ID
	}
	return s, nil
}
