// Package registry resolves DAO contract names and addresses from a
// migration file.
package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownContract = errors.New("unknown contract")
	ErrUnknownName     = errors.New("no contract registered under name")
)

// ContractInfo describes a deployed contract known to the registry.
type ContractInfo struct {
	Name    string         `yaml:"name"`
	Version string         `yaml:"version"`
	Address common.Address `yaml:"-"`
}

// File is the on-disk layout of a migration file. JSON migration files are
// valid YAML and load the same way.
type File struct {
	Version string `yaml:"version"`
	// Base holds the universal contracts, keyed by contract name.
	Base map[string]string `yaml:"base"`
	// DAO holds the contracts of the bootstrap DAO, keyed by contract name.
	DAO map[string]string `yaml:"dao"`
}

// Registry is an immutable address book of known contracts.
type Registry struct {
	byAddress map[common.Address]ContractInfo
	byName    map[string]common.Address
	names     mapset.Set[string]
}

// New builds a registry from contract infos. A later entry with the same name
// replaces the address registered for that name.
func New(contracts []ContractInfo) *Registry {
	r := &Registry{
		byAddress: make(map[common.Address]ContractInfo, len(contracts)),
		byName:    make(map[string]common.Address, len(contracts)),
		names:     mapset.NewThreadUnsafeSet[string](),
	}
	for _, c := range contracts {
		r.byAddress[c.Address] = c
		r.byName[c.Name] = c.Address
		r.names.Add(c.Name)
	}
	return r
}

// Load reads a migration file from path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a migration file.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	var contracts []ContractInfo
	for _, section := range []map[string]string{f.Base, f.DAO} {
		for name, addr := range section {
			if !common.IsHexAddress(addr) {
				return nil, fmt.Errorf("registry: contract %s has malformed address %q", name, addr)
			}
			contracts = append(contracts, ContractInfo{
				Name:    name,
				Version: f.Version,
				Address: common.HexToAddress(addr),
			})
		}
	}
	return New(contracts), nil
}

// GetContractInfo returns the contract registered at address.
func (r *Registry) GetContractInfo(address string) (ContractInfo, error) {
	if !common.IsHexAddress(address) {
		return ContractInfo{}, fmt.Errorf("%w: %s", ErrUnknownContract, address)
	}
	info, ok := r.byAddress[common.HexToAddress(address)]
	if !ok {
		return ContractInfo{}, fmt.Errorf("%w: %s", ErrUnknownContract, strings.ToLower(address))
	}
	return info, nil
}

// Address returns the address registered under name.
func (r *Registry) Address(name string) (common.Address, error) {
	addr, ok := r.byName[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%w %q", ErrUnknownName, name)
	}
	return addr, nil
}

// Names returns a copy of the registered contract names.
func (r *Registry) Names() mapset.Set[string] {
	return r.names.Clone()
}
