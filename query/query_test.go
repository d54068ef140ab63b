package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhereClause(t *testing.T) {
	t.Run("SkipsNilValues", func(t *testing.T) {
		where, err := WhereClause(Where{"id": "0x1", "name": nil})
		require.NoError(t, err)
		assert.Equal(t, "id: \"0x1\"\n", where)
	})

	t.Run("LowercasesAddressKeys", func(t *testing.T) {
		where, err := WhereClause(Where{"dao": "0xAbCdEf0000000000000000000000000000000001"}, "dao")
		require.NoError(t, err)
		assert.Equal(t, "dao: \"0xabcdef0000000000000000000000000000000001\"\n", where)
	})

	t.Run("RejectsMalformedAddress", func(t *testing.T) {
		_, err := WhereClause(Where{"address": "0xFake"}, "address")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("NonAddressValuesAreStrings", func(t *testing.T) {
		where, err := WhereClause(Where{"canDelegateCall": true, "paramsHash": "0xAB"})
		require.NoError(t, err)
		assert.Equal(t, "canDelegateCall: \"true\"\nparamsHash: \"0xAB\"\n", where)
	})
}

func TestArguments(t *testing.T) {
	assert.Equal(t, "", Arguments(Options{}, ""))
	assert.Equal(t,
		"(where: {\nid: \"1\"\n}\nfirst: 10\nskip: 5\norderBy: createdAt\norderDirection: desc\n)",
		Arguments(Options{First: 10, Skip: 5, OrderBy: "createdAt", OrderDirection: "desc"}, "id: \"1\"\n"),
	)
}

func TestCollection(t *testing.T) {
	q, err := Collection("controllerSchemes", Options{First: 1}, "id")
	require.NoError(t, err)
	assert.Equal(t, "{\n  controllerSchemes (first: 1\n) {\nid\n  }\n}", q)

	_, err = Collection("controllerSchemes", Options{Where: Where{"dao": "nope"}}, "id", "dao")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1"))
	assert.Error(t, ValidateAddress("90f8bf6a479f320ead074411a4b0e7944ea8c9c1"))
	assert.Error(t, ValidateAddress("0x1234"))
}
