// Package execution checks the configured network and stored sync passes
// against an execution-layer node.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/keys-api/interfaces"
)

var (
	// ErrChainIDMismatch is returned when the node serves a different chain than configured.
	ErrChainIDMismatch = errors.New("chain id mismatch")

	// ErrNonCanonicalSnapshot is returned when the block a sync pass was taken at
	// is no longer part of the canonical chain.
	ErrNonCanonicalSnapshot = errors.New("snapshot block is not canonical")
)

var networkNames = map[uint64]string{
	1:        "mainnet",
	5:        "goerli",
	17000:    "holesky",
	11155111: "sepolia",
}

// NetworkName returns the lowercase name of a well-known chain, or "chain-<id>".
func NetworkName(chainID uint64) string {
	if name, ok := networkNames[chainID]; ok {
		return name
	}
	return fmt.Sprintf("chain-%d", chainID)
}

// ChainReader is the subset of ethclient.Client the provider needs.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

type Provider struct {
	client ChainReader
	closer func()
	log    *slog.Logger
}

func NewProvider(client ChainReader, log *slog.Logger) *Provider {
	return &Provider{
		client: client,
		log:    log,
	}
}

// Dial connects to the node at rpcAddr.
func Dial(ctx context.Context, rpcAddr string, log *slog.Logger) (*Provider, error) {
	client, err := ethclient.DialContext(ctx, rpcAddr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", rpcAddr, err)
	}

	p := NewProvider(client, log)
	p.closer = client.Close
	return p, nil
}

func (p *Provider) ChainID(ctx context.Context) (uint64, error) {
	id, err := p.client.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not fetch chain id: %w", err)
	}
	return id.Uint64(), nil
}

// CheckChainID fails unless the node serves the expected chain.
func (p *Provider) CheckChainID(ctx context.Context, expected uint64) error {
	actual, err := p.ChainID(ctx)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("%w: configured %d (%s), node serves %d (%s)",
			ErrChainIDMismatch, expected, NetworkName(expected), actual, NetworkName(actual))
	}
	return nil
}

// BlockHash returns the canonical hash of the block at number.
func (p *Provider) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	header, err := p.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not fetch block %d: %w", number, err)
	}
	return header.Hash(), nil
}

// CheckSnapshot verifies that meta was taken at a canonical block. A nil meta
// passes, there is nothing to check yet.
func (p *Provider) CheckSnapshot(ctx context.Context, meta *interfaces.SyncMeta) error {
	if meta == nil {
		return nil
	}

	hash, err := p.BlockHash(ctx, meta.BlockNumber)
	if err != nil {
		return err
	}
	if hash != meta.BlockHash {
		return fmt.Errorf("%w: block %d is %s, snapshot has %s",
			ErrNonCanonicalSnapshot, meta.BlockNumber, hash.Hex(), meta.BlockHash.Hex())
	}

	p.log.Debug("Snapshot block is canonical", "blockNumber", meta.BlockNumber, "blockHash", meta.BlockHash.Hex())
	return nil
}

func (p *Provider) Close() {
	if p.closer != nil {
		p.closer()
	}
}
