package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/config"
)

// Wallet is the ordered account list of one network. Named-account indexes
// point into it: local account entries first, then the remote signer's
// accounts in the order eth_accounts returned them.
type Wallet struct {
	signers []Signer
}

// NewWallet builds the wallet for a network from its account entries and
// optional remote signer.
func NewWallet(ctx context.Context, net *config.Network) (*Wallet, error) {
	w := &Wallet{}

	for i, entry := range net.Accounts {
		s, err := parseAccountEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("network %s account %d: %w", net.Name, i, err)
		}
		w.signers = append(w.signers, s)
	}

	if net.Signer != nil {
		remote := NewRemoteSigner(net.Signer.URL, net.Signer.APIKey)
		addrs, err := remote.Accounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("network %s remote signer: %w", net.Name, err)
		}
		for _, addr := range addrs {
			w.signers = append(w.signers, remote.ForAddress(addr))
		}
	}

	return w, nil
}

// NewWalletFromSigners builds a wallet from existing signers.
func NewWalletFromSigners(signers ...Signer) *Wallet {
	return &Wallet{signers: signers}
}

// Len returns the number of accounts.
func (w *Wallet) Len() int {
	return len(w.signers)
}

// Addresses returns every account address in wallet order.
func (w *Wallet) Addresses() []common.Address {
	addrs := make([]common.Address, len(w.signers))
	for i, s := range w.signers {
		addrs[i] = s.Address()
	}
	return addrs
}

// At returns the signer at index i.
func (w *Wallet) At(i int) (Signer, error) {
	if i < 0 || i >= len(w.signers) {
		return nil, fmt.Errorf("%w: %d (wallet has %d accounts)", ErrAccountIndex, i, len(w.signers))
	}
	return w.signers[i], nil
}

// SignerFor returns the signer for addr.
func (w *Wallet) SignerFor(addr common.Address) (Signer, error) {
	for _, s := range w.signers {
		if s.Address() == addr {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSigner, addr.Hex())
}

// NamedAccount resolves a single role on the given network.
func (w *Wallet) NamedAccount(cfg *config.Config, role, network string) (common.Address, error) {
	ref, err := cfg.NamedAccount(role, network)
	if err != nil {
		return common.Address{}, err
	}
	if ref.IsAddress {
		return ref.Address, nil
	}
	s, err := w.At(ref.Index)
	if err != nil {
		return common.Address{}, fmt.Errorf("named account %s on %s: %w", role, network, err)
	}
	return s.Address(), nil
}

// NamedAccounts resolves every configured role on the given network. Roles
// that do not resolve there (an index past the wallet, or no entry for the
// network) are left out; NamedAccount reports why for a single role.
func (w *Wallet) NamedAccounts(cfg *config.Config, network string) (map[string]common.Address, error) {
	roles := cfg.NamedAccountRoles()
	sort.Strings(roles)

	named := make(map[string]common.Address, len(roles))
	for _, role := range roles {
		addr, err := w.NamedAccount(cfg, role, network)
		if errors.Is(err, ErrAccountIndex) || errors.Is(err, config.ErrInvalidNamedAccount) {
			slog.Debug("named account unresolved",
				slog.String("role", role),
				slog.String("network", network),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		named[role] = addr
	}
	return named, nil
}
