// Package chains lists the chain IDs the client can be assembled for.
package chains

const (
	Mainnet uint64 = 1
	Sepolia uint64 = 11155111
	// Ganache is the chain ID of a local development node.
	Ganache uint64 = 1337
)
