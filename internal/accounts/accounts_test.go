package accounts

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/config"
)

const (
	keyA = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	keyB = "0x8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a"
)

func addrOf(t *testing.T, hexKey string) common.Address {
	t.Helper()
	s, err := NewLocalSigner(hexKey)
	require.NoError(t, err)
	return s.Address()
}

func TestNewLocalSigner(t *testing.T) {
	key, err := crypto.HexToECDSA(keyA)
	require.NoError(t, err)

	for _, in := range []string{keyA, "0x" + keyA, "  0x" + keyA + "\n"} {
		s, err := NewLocalSigner(in)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())
	}

	_, err = NewLocalSigner("0x1234")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLocalSigner_SignTx(t *testing.T) {
	s, err := NewLocalSigner(keyA)
	require.NoError(t, err)

	chainID := big.NewInt(8899)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		Data:      []byte{0x60, 0x00},
	})

	signed, err := s.SignTx(context.Background(), tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}

func TestNewKeystoreSigner(t *testing.T) {
	key, err := crypto.HexToECDSA(keyA)
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	encrypted, err := keystore.EncryptKey(&keystore.Key{
		Id:         uuid.New(),
		Address:    addr,
		PrivateKey: key,
	}, "hunter2", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "deployer.json")
	require.NoError(t, os.WriteFile(path, encrypted, 0600))

	s, err := NewKeystoreSigner(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, addr, s.Address())

	_, err = NewKeystoreSigner(path, "wrong")
	assert.ErrorIs(t, err, ErrInvalidKey)

	t.Setenv(KeystorePasswordEnv, "hunter2")
	entry, err := parseAccountEntry(KeystorePrefix + path)
	require.NoError(t, err)
	assert.Equal(t, addr, entry.Address())
}

// newRPCServer serves eth_accounts and eth_signTransaction from canned values.
func newRPCServer(t *testing.T, accounts []common.Address, signed *types.Transaction) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		body, _ := io.ReadAll(r.Body)
		var req rpcRequest
		require.NoError(t, json.Unmarshal(body, &req))

		var result interface{}
		switch req.Method {
		case "eth_accounts":
			result = accounts
		case "eth_signTransaction":
			raw, err := signed.MarshalBinary()
			require.NoError(t, err)
			result = hexutil.Encode(raw)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}

		resJSON, _ := json.Marshal(result)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: resJSON})
	}))
}

func TestRemoteSigner(t *testing.T) {
	local, err := NewLocalSigner(keyA)
	require.NoError(t, err)

	chainID := big.NewInt(8899)
	signed, err := local.SignTx(context.Background(), types.NewTx(&types.LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      100000,
		Data:     []byte{0x00},
	}), chainID)
	require.NoError(t, err)

	srv := newRPCServer(t, []common.Address{local.Address()}, signed)
	defer srv.Close()

	remote := NewRemoteSigner(srv.URL, "secret")

	addrs, err := remote.Accounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{local.Address()}, addrs)

	acct := remote.ForAddress(local.Address())
	got, err := acct.SignTx(context.Background(), types.NewTx(&types.LegacyTx{Nonce: 1}), chainID)
	require.NoError(t, err)
	assert.Equal(t, signed.Hash(), got.Hash())

	t.Run("unauthorized", func(t *testing.T) {
		_, err := NewRemoteSigner(srv.URL, "").Accounts(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

func TestBuildTxArgs(t *testing.T) {
	from := common.HexToAddress("0x01")
	to := common.HexToAddress("0x02")
	chainID := big.NewInt(8899)

	legacy := buildTxArgs(from, types.NewTx(&types.LegacyTx{
		Nonce:    7,
		GasPrice: big.NewInt(5),
		Gas:      21000,
		To:       &to,
	}), chainID)
	require.NotNil(t, legacy.GasPrice)
	assert.Equal(t, "0x5", *legacy.GasPrice)
	assert.Nil(t, legacy.MaxFeePerGas)
	require.NotNil(t, legacy.To)
	assert.Equal(t, "0x7", legacy.Nonce)
	assert.Equal(t, "0x22c3", legacy.ChainID)

	create := buildTxArgs(from, types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(9),
		Gas:       50000,
		Data:      []byte{0xde, 0xad},
	}), chainID)
	assert.Nil(t, create.To)
	assert.Nil(t, create.GasPrice)
	require.NotNil(t, create.MaxFeePerGas)
	assert.Equal(t, "0x9", *create.MaxFeePerGas)
	assert.Equal(t, "0xdead", create.Data)
}

func TestWallet_NamedAccounts(t *testing.T) {
	net := &config.Network{Name: "local", Accounts: []string{keyA, keyB}}
	w, err := NewWallet(context.Background(), net)
	require.NoError(t, err)
	require.Equal(t, 2, w.Len())

	cfg := config.Default()
	cfg.NamedAccounts = map[string]any{
		"deployer": 0,
		"minter":   map[string]any{"default": 0, "local": 1},
		"treasury": "0x00000000000000000000000000000000000000aa",
	}

	named, err := w.NamedAccounts(cfg, "local")
	require.NoError(t, err)
	assert.Equal(t, addrOf(t, keyA), named["deployer"])
	assert.Equal(t, addrOf(t, keyB), named["minter"])
	assert.Equal(t, common.HexToAddress("0xaa"), named["treasury"])

	s, err := w.SignerFor(named["minter"])
	require.NoError(t, err)
	assert.Equal(t, named["minter"], s.Address())

	_, err = w.SignerFor(named["treasury"])
	assert.ErrorIs(t, err, ErrNoSigner)
}

func TestWallet_IndexOutOfRange(t *testing.T) {
	w := NewWalletFromSigners()
	_, err := w.NamedAccount(config.Default(), "deployer", "JBC")
	assert.ErrorIs(t, err, ErrAccountIndex)
}

func TestWallet_NamedAccountsSkipsUnresolvedRoles(t *testing.T) {
	w := NewWalletFromSigners(mustLocal(t, keyA))

	cfg := config.Default()
	cfg.NamedAccounts["treasury"] = 1
	cfg.NamedAccounts["minter"] = map[string]any{"mainnet": 0}

	named, err := w.NamedAccounts(cfg, "jbc")
	require.NoError(t, err)
	assert.Equal(t, map[string]common.Address{"deployer": addrOf(t, keyA)}, named)

	deployer, err := w.NamedAccount(cfg, "deployer", "jbc")
	require.NoError(t, err)
	assert.Equal(t, addrOf(t, keyA), deployer)

	_, err = w.NamedAccount(cfg, "treasury", "jbc")
	assert.ErrorIs(t, err, ErrAccountIndex)
	_, err = w.NamedAccount(cfg, "minter", "jbc")
	assert.ErrorIs(t, err, config.ErrInvalidNamedAccount)
}

func mustLocal(t *testing.T, hexKey string) *LocalSigner {
	t.Helper()
	s, err := NewLocalSigner(hexKey)
	require.NoError(t, err)
	return s
}

func TestNewWallet_RemoteAccountsFollowLocal(t *testing.T) {
	remoteAddr := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	srv := newRPCServer(t, []common.Address{remoteAddr}, nil)
	defer srv.Close()

	net := &config.Network{
		Name:     "local",
		Accounts: []string{keyA},
		Signer:   &config.RemoteSigner{URL: srv.URL, APIKey: "secret"},
	}
	w, err := NewWallet(context.Background(), net)
	require.NoError(t, err)

	assert.Equal(t, []common.Address{addrOf(t, keyA), remoteAddr}, w.Addresses())
}

func TestNewWallet_BadEntry(t *testing.T) {
	_, err := NewWallet(context.Background(), &config.Network{Name: "local", Accounts: []string{"nope"}})
	assert.ErrorIs(t, err, ErrInvalidKey)
}
