package scheme_test

import (
	"context"
	"strings"
	"testing"

	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/arc/arctest"
	"github.com/defistate/dao-state-client-go/protocols/proposal"
	"github.com/defistate/dao-state-client-go/protocols/scheme"
	"github.com/defistate/dao-state-client-go/protocols/scheme/contributionreward"
	"github.com/defistate/dao-state-client-go/protocols/scheme/internal/proposingtest"
	"github.com/defistate/dao-state-client-go/query"
	"github.com/defistate/dao-state-client-go/registry"
	"github.com/defistate/dao-state-client-go/streams/live"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dao           = "0x1111111111111111111111111111111111111111"
	rewardAddress = "0x2222222222222222222222222222222222222222"
	genericAddr   = "0x3333333333333333333333333333333333333333"
	schemeID      = "0xabcdef"
)

var contracts = []registry.ContractInfo{
	{Name: contributionreward.Name, Version: "0.0.1-rc.19", Address: common.HexToAddress(rewardAddress)},
}

func schemeRecord(id, name, address string) string {
	n := "null"
	if name != "" {
		n = `"` + name + `"`
	}
	return `{
		"id": "` + id + `",
		"address": "` + address + `",
		"name": ` + n + `,
		"dao": {"id": "` + dao + `"},
		"canDelegateCall": false,
		"canRegisterSchemes": true,
		"canUpgradeController": false,
		"canManageGlobalConstraints": false,
		"paramsHash": "0x00"
	}`
}

func TestSearch_NameResolvedFromRegistry(t *testing.T) {
	env := arctest.NewEnv(t, contracts)
	env.Indexer.Set("controllerSchemes", "["+
		schemeRecord("0x01", "", rewardAddress)+","+
		schemeRecord("0x02", "GenericScheme", genericAddr)+"]")

	q, err := scheme.Search(env.Context, query.Options{Where: query.Where{"dao": dao, "name": contributionreward.Name}}, "")
	require.NoError(t, err)
	schemes, err := live.First(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, schemes, 1)
	assert.Equal(t, "0x01", schemes[0].ID())

	s, err := schemes[0].FetchStaticState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contributionreward.Name, s.Name)
	assert.Equal(t, dao, s.DAO)

	sent := env.Indexer.Queries()[0]
	assert.Contains(t, sent, `dao: "`+dao+`"`)
	assert.NotContains(t, sent, "name:", "name is filtered on the client")
}

func TestSearch_UnknownContractLeavesNameEmpty(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	env.Indexer.Set("controllerSchemes", "["+schemeRecord("0x01", "", genericAddr)+"]")

	q, err := scheme.Search(env.Context, query.Options{}, "")
	require.NoError(t, err)
	schemes, err := live.First(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, schemes, 1)

	s, err := schemes[0].FetchStaticState(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Name)
}

func TestSearch_InvalidAddress(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	_, err := scheme.Search(env.Context, query.Options{Where: query.Where{"dao": "0xFake"}}, "")
	assert.ErrorIs(t, err, query.ErrInvalidAddress)
	assert.Zero(t, env.Indexer.Calls())
}

func TestNew_LowercasesID(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	s := scheme.New("0xABCDEF", env.Context)
	assert.Equal(t, schemeID, s.ID())
	assert.Equal(t, schemeID, scheme.NewFromState(scheme.StaticState{ID: "0xABCDEF"}, env.Context).ID())
}

func TestState(t *testing.T) {
	env := arctest.NewEnv(t, contracts)
	s := scheme.New(schemeID, env.Context)

	_, err := live.First(context.Background(), s.State())
	assert.ErrorIs(t, err, arc.ErrNotFound)
	assert.ErrorContains(t, err, schemeID)

	env.Indexer.Set("controllerScheme", schemeRecord(schemeID, "", rewardAddress))
	state, err := live.First(context.Background(), s.State())
	require.NoError(t, err)
	assert.Equal(t, contributionreward.Name, state.Name)
	assert.True(t, state.CanRegisterSchemes)
	assert.False(t, state.CanDelegateCall)
	assert.Contains(t, env.Indexer.Queries()[1], `controllerScheme (id: "`+schemeID+`")`)
}

func TestFetchStaticState_Cached(t *testing.T) {
	env := arctest.NewEnv(t, contracts)
	env.Indexer.Set("controllerScheme", schemeRecord(schemeID, contributionreward.Name, rewardAddress))
	s := scheme.New(schemeID, env.Context)

	first, err := s.FetchStaticState(context.Background())
	require.NoError(t, err)
	calls := env.Indexer.Calls()

	env.Indexer.Set("controllerScheme", schemeRecord(schemeID, "GenericScheme", genericAddr))
	second, err := s.FetchStaticState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, calls, env.Indexer.Calls())
}

func TestState_UnknownContractLeavesNameEmpty(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	env.Indexer.Set("controllerScheme", schemeRecord(schemeID, "", genericAddr))

	state, err := live.First(context.Background(), scheme.New(schemeID, env.Context).State())
	require.NoError(t, err)
	assert.Empty(t, state.Name)
	assert.Equal(t, genericAddr, state.Address)
}

func TestCreateProposal_UnknownScheme(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	env.Indexer.Set("controllerScheme", schemeRecord(schemeID, "UnknownScheme", genericAddr))
	s := scheme.New(schemeID, env.Context)

	op, err := s.CreateProposal(proposal.CreateOptions{DAO: dao})
	require.NoError(t, err)
	assert.Zero(t, env.Indexer.Calls(), "the scheme is resolved when the operation is sent")

	_, err = op.Send(context.Background())
	require.ErrorIs(t, err, scheme.ErrUnknownScheme)
	assert.Contains(t, err.Error(), `unknown proposal scheme: "UnknownScheme"`)
	assert.Empty(t, env.Transactor.Sent())
	assert.Zero(t, env.Ledger.ContractCalls())
}

func TestCreateProposal_InvalidOptions(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	s := scheme.New(schemeID, env.Context)

	_, err := s.CreateProposal(proposal.CreateOptions{DAO: "0xFake"})
	require.Error(t, err)
	assert.Zero(t, env.Indexer.Calls())
}

func TestCreateProposal_ContributionReward(t *testing.T) {
	env := arctest.NewEnv(t, contracts)
	env.Indexer.Set("controllerScheme", schemeRecord(schemeID, "", rewardAddress))
	id, err := proposal.ParseID("0x42")
	require.NoError(t, err)
	env.Transactor.Logs = func(call arctest.SentCall) []*types.Log {
		return []*types.Log{proposingtest.ProposalLog(call.To, contributionreward.ProposalEvent, common.HexToAddress(dao), id)}
	}

	s := scheme.New(schemeID, env.Context)
	op, err := s.CreateProposal(proposal.CreateOptions{
		DAO:             dao,
		DescriptionHash: "QmHash",
		Beneficiary:     arctest.Account.Hex(),
	})
	require.NoError(t, err)
	assert.Empty(t, env.Transactor.Sent(), "nothing is sent before the operation starts")
	assert.Zero(t, env.Indexer.Calls())

	p, err := op.Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, p.ID())

	sent := env.Transactor.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, common.HexToAddress(rewardAddress), sent[0].To)
}

func TestProposals_FiltersOnScheme(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	env.Indexer.Set("proposals", "[]")
	s := scheme.New("0xABCDEF", env.Context)

	q, err := s.Proposals(query.Options{Where: query.Where{"dao": dao}}, "")
	require.NoError(t, err)
	proposals, err := live.First(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, proposals)

	sent := env.Indexer.Queries()[0]
	assert.True(t, strings.Contains(sent, `scheme: "`+schemeID+`"`), sent)
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"ContributionReward", "GenericScheme", "SchemeRegistrar"} {
		k, err := scheme.ParseKind(name)
		require.NoError(t, err)
		assert.NotNil(t, k.Encoder())
	}
	assert.Equal(t, 3, scheme.SupportedKinds().Cardinality())
	assert.True(t, scheme.SupportedKinds().Contains(scheme.KindGenericScheme))

	_, err := scheme.ParseKind("")
	assert.ErrorIs(t, err, scheme.ErrUnknownScheme)
}
