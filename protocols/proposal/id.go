package proposal

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ID is the bytes32 identifier a scheme assigns to a proposal.
//
// The subgraph renders it as a 0x-prefixed, 64 digit lowercase hex string; on
// chain it is emitted as an indexed event topic.
type ID [32]byte

// Bytes returns the raw underlying byte slice.
func (id ID) Bytes() []byte {
	return id[:]
}

// String returns the lowercase hex representation used by the subgraph.
func (id ID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Hash converts the ID into an event topic.
func (id ID) Hash() common.Hash {
	return common.Hash(id)
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON parses a hex string into the ID.
//
// Decoded bytes are right-aligned: a short input is treated as a big-endian
// number with its leading zero bytes omitted, as happens when an ID is
// rendered through an integer type.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID parses a hex string, with or without 0x prefix, into an ID.
func ParseID(s string) (ID, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, err
	}
	if len(b) > 32 {
		return ID{}, errors.New("proposal id too long")
	}
	var id ID
	copy(id[32-len(b):], b)
	return id, nil
}

// IDFromTopic converts an event topic into an ID.
func IDFromTopic(topic common.Hash) ID {
	return ID(topic)
}
