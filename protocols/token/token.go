// Package token reads and moves DAO tokens: ERC20 contracts whose state is
// indexed by the subgraph and whose balances are read from the ledger.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/pkg/maybe"
	"github.com/defistate/dao-state-client-go/query"
	"github.com/defistate/dao-state-client-go/streams/live"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// StakingSpender is the registry name of the contract that stakes tokens on
// proposals.
const StakingSpender = "GenesisProtocol"

const (
	fields = `    id
    dao { id }
    name
    symbol
    totalSupply`

	allowanceFields = `    token
    owner
    spender
    amount`

	approvalFields = `    id
    contract
    owner
    spender
    value`
)

// StaticState holds the facts of a token that never change.
type StaticState struct {
	Address string
	Name    string
	Symbol  string
	// Owner is the DAO that owns the token.
	Owner string
}

// State is the indexed state of a token.
type State struct {
	StaticState
	TotalSupply *uint256.Int
}

// Allowance is the amount a spender may still transfer from an owner.
type Allowance struct {
	Token   string
	Owner   string
	Spender string
	Amount  *uint256.Int
}

// Approval is an indexed Approval event.
type Approval struct {
	ID       string
	Contract string
	Owner    string
	Spender  string
	Value    *uint256.Int
}

// AllowanceFilter narrows Allowances. Empty fields are not filtered.
type AllowanceFilter struct {
	Owner   string
	Spender string
}

type record struct {
	ID  string `json:"id"`
	DAO *struct {
		ID string `json:"id"`
	} `json:"dao"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	TotalSupply string `json:"totalSupply"`
}

// Token is a handle on a token contract.
type Token struct {
	address string
	context *arc.Context

	mu          sync.Mutex
	staticState maybe.Maybe[StaticState]
}

// New creates a handle for the token at address. The address is not checked;
// an unknown contract surfaces when its state is read.
func New(address string, c *arc.Context) *Token {
	return &Token{address: arc.NormalizeID(address), context: c}
}

// NewFromState creates a handle with its static state already known.
func NewFromState(s StaticState, c *arc.Context) *Token {
	s.Address = arc.NormalizeID(s.Address)
	return &Token{address: s.Address, context: c, staticState: maybe.Some(s)}
}

func (t *Token) Address() string {
	return t.address
}

// Search watches the tokens matching opts.
func Search(c *arc.Context, opts query.Options, fetch query.FetchPolicy) (*live.Query[[]*Token], error) {
	q, err := query.Collection("tokens", opts, fields, "id", "dao")
	if err != nil {
		return nil, err
	}
	return arc.ObservableList(c, query.Request{Query: q, FetchPolicy: fetch}, "tokens",
		func(_ context.Context, raw []byte) (*Token, bool, error) {
			st, err := decode(raw)
			if err != nil {
				return nil, false, err
			}
			return NewFromState(st.StaticState, c), false, nil
		}), nil
}

// State watches the token's indexed state.
func (t *Token) State() *live.Query[State] {
	q := query.Single("token", t.address, fields)
	return arc.ObservableObject(t.context, query.Request{Query: q}, "token",
		func(_ context.Context, raw []byte) (State, error) {
			if raw == nil {
				return State{}, fmt.Errorf("could not find a token contract with address %s: %w", t.address, arc.ErrNotFound)
			}
			return decode(raw)
		})
}

// FetchStaticState returns the cached static state, fetching it on first use.
func (t *Token) FetchStaticState(ctx context.Context) (StaticState, error) {
	t.mu.Lock()
	st, ok := t.staticState.Get()
	t.mu.Unlock()
	if ok {
		return st, nil
	}

	state, err := live.First(ctx, t.State())
	if err != nil {
		return StaticState{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.staticState.Get(); ok {
		return st, nil
	}
	t.staticState = maybe.Some(state.StaticState)
	return state.StaticState, nil
}

func decode(raw []byte) (State, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return State{}, fmt.Errorf("decode token: %w", err)
	}
	supply, err := arc.ParseAmount(r.TotalSupply)
	if err != nil {
		return State{}, err
	}
	s := State{
		StaticState: StaticState{
			Address: arc.NormalizeID(r.ID),
			Name:    r.Name,
			Symbol:  r.Symbol,
		},
		TotalSupply: supply,
	}
	if r.DAO != nil {
		s.Owner = r.DAO.ID
	}
	return s, nil
}

// BalanceOf watches the balance of owner as reported by the ledger. The
// balance is read again on every new block and emitted when it changes.
func (t *Token) BalanceOf(owner string) *live.Query[*uint256.Int] {
	if err := query.ValidateAddress(owner); err != nil {
		return live.Fail[*uint256.Int](err)
	}
	if err := query.ValidateAddress(t.address); err != nil {
		return live.Fail[*uint256.Int](err)
	}
	data, err := erc20.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return live.Fail[*uint256.Int](err)
	}
	to := common.HexToAddress(t.address)
	ledger := t.context.Ledger()

	return live.NewQuery(func(ctx context.Context, emit live.EmitFunc[*uint256.Int]) error {
		var (
			last    *uint256.Int
			head    uint64
			started bool
		)
		for {
			n, err := ledger.BlockNumber(ctx)
			if err != nil {
				return fmt.Errorf("block number: %w", err)
			}
			if !started || n != head {
				started, head = true, n
				out, err := ledger.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
				if err != nil {
					return fmt.Errorf("balanceOf %s: %w", owner, err)
				}
				balance, err := unpackAmount("balanceOf", out)
				if err != nil {
					return err
				}
				if last == nil || !last.Eq(balance) {
					last = balance
					if !emit(balance) {
						return nil
					}
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(t.context.PollInterval()):
			}
		}
	})
}

// Allowances watches the indexed allowances on this token.
func (t *Token) Allowances(filter AllowanceFilter) (*live.Query[[]Allowance], error) {
	where := query.Where{"token": t.address}
	if filter.Owner != "" {
		where["owner"] = filter.Owner
	}
	if filter.Spender != "" {
		where["spender"] = filter.Spender
	}
	q, err := query.Collection("allowances", query.Options{Where: where}, allowanceFields, "token", "owner", "spender")
	if err != nil {
		return nil, err
	}
	return arc.ObservableList(t.context, query.Request{Query: q}, "allowances",
		func(_ context.Context, raw []byte) (Allowance, bool, error) {
			var r struct {
				Token   string `json:"token"`
				Owner   string `json:"owner"`
				Spender string `json:"spender"`
				Amount  string `json:"amount"`
			}
			if err := json.Unmarshal(raw, &r); err != nil {
				return Allowance{}, false, fmt.Errorf("decode allowance: %w", err)
			}
			amount, err := arc.ParseAmount(r.Amount)
			if err != nil {
				return Allowance{}, false, err
			}
			return Allowance{Token: r.Token, Owner: r.Owner, Spender: r.Spender, Amount: amount}, false, nil
		}), nil
}

// Approvals watches the Approval events emitted for owner.
func (t *Token) Approvals(owner string) (*live.Query[[]Approval], error) {
	where := query.Where{"contract": t.address, "owner": owner}
	q, err := query.Collection("tokenApprovals", query.Options{Where: where}, approvalFields, "contract", "owner")
	if err != nil {
		return nil, err
	}
	return arc.ObservableList(t.context, query.Request{Query: q}, "tokenApprovals",
		func(_ context.Context, raw []byte) (Approval, bool, error) {
			var r struct {
				ID       string `json:"id"`
				Contract string `json:"contract"`
				Owner    string `json:"owner"`
				Spender  string `json:"spender"`
				Value    string `json:"value"`
			}
			if err := json.Unmarshal(raw, &r); err != nil {
				return Approval{}, false, fmt.Errorf("decode approval: %w", err)
			}
			value, err := arc.ParseAmount(r.Value)
			if err != nil {
				return Approval{}, false, err
			}
			return Approval{ID: r.ID, Contract: r.Contract, Owner: r.Owner, Spender: r.Spender, Value: value}, false, nil
		}), nil
}

// ApproveForStaking allows the staking contract to spend amount of the
// default account's tokens.
func (t *Token) ApproveForStaking(amount *uint256.Int) *operation.Operation[*types.Receipt] {
	return t.send(func() (common.Address, error) {
		return t.context.ContractAddress(StakingSpender)
	}, "approve", amount)
}

// Mint creates amount tokens for beneficiary. The default account must own
// the token.
func (t *Token) Mint(beneficiary string, amount *uint256.Int) *operation.Operation[*types.Receipt] {
	return t.send(addressOf(beneficiary), "mint", amount)
}

// Transfer moves amount tokens from the default account to beneficiary.
func (t *Token) Transfer(beneficiary string, amount *uint256.Int) *operation.Operation[*types.Receipt] {
	return t.send(addressOf(beneficiary), "transfer", amount)
}

// send calls method(account, amount) on the token. The account is resolved
// when the operation starts.
func (t *Token) send(account func() (common.Address, error), method string, amount *uint256.Int) *operation.Operation[*types.Receipt] {
	build := func(ctx context.Context) (*types.Transaction, error) {
		if err := query.ValidateAddress(t.address); err != nil {
			return nil, err
		}
		to, err := account()
		if err != nil {
			return nil, err
		}
		value := new(big.Int)
		if amount != nil {
			value = amount.ToBig()
		}
		data, err := erc20.Pack(method, to, value)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		return t.context.Call(common.HexToAddress(t.address), data, nil)(ctx)
	}
	return arc.SendTransaction(t.context, build, func(receipt *types.Receipt) (*types.Receipt, error) {
		return receipt, nil
	})
}

func addressOf(s string) func() (common.Address, error) {
	return func() (common.Address, error) {
		if err := query.ValidateAddress(s); err != nil {
			return common.Address{}, err
		}
		return common.HexToAddress(s), nil
	}
}

func unpackAmount(method string, out []byte) (*uint256.Int, error) {
	values, err := erc20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected %T", method, values[0])
	}
	amount, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("unpack %s: %s overflows uint256", method, v)
	}
	return amount, nil
}
