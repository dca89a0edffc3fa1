package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// RemoteSigner signs through a JSON-RPC endpoint that implements
// eth_accounts and eth_signTransaction, authenticated with an X-API-Key header.
type RemoteSigner struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewRemoteSigner creates a client for the signer at endpoint.
func NewRemoteSigner(endpoint, apiKey string) *RemoteSigner {
	return &RemoteSigner{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Accounts lists the addresses the remote signer can sign for.
func (r *RemoteSigner) Accounts(ctx context.Context) ([]common.Address, error) {
	var addrs []common.Address
	if err := r.call(ctx, "eth_accounts", []interface{}{}, &addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

// ForAddress returns a Signer bound to one of the remote accounts.
func (r *RemoteSigner) ForAddress(addr common.Address) Signer {
	return &remoteAccount{remote: r, address: addr}
}

// SignTx asks the remote signer to sign tx on behalf of from.
func (r *RemoteSigner) SignTx(ctx context.Context, from common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	var signedTxHex string
	if err := r.call(ctx, "eth_signTransaction", []interface{}{buildTxArgs(from, tx, chainID)}, &signedTxHex); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	txBytes, err := hexutil.Decode(signedTxHex)
	if err != nil {
		return nil, fmt.Errorf("%w: decode hex: %v", ErrSigningFailed, err)
	}

	var signed types.Transaction
	if err := signed.UnmarshalBinary(txBytes); err != nil {
		return nil, fmt.Errorf("%w: unmarshal transaction: %v", ErrSigningFailed, err)
	}

	return &signed, nil
}

// call performs a single JSON-RPC request and decodes the result into out.
func (r *RemoteSigner) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("X-API-Key", r.apiKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s failed: %d %s", method, resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return fmt.Errorf("JSON-RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

// remoteAccount adapts RemoteSigner to the single-address Signer interface.
type remoteAccount struct {
	remote  *RemoteSigner
	address common.Address
}

func (a *remoteAccount) Address() common.Address {
	return a.address
}

func (a *remoteAccount) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return a.remote.SignTx(ctx, a.address, tx, chainID)
}

// buildTxArgs converts a go-ethereum transaction to JSON-RPC args.
func buildTxArgs(from common.Address, tx *types.Transaction, chainID *big.Int) txArgs {
	args := txArgs{
		From:    from.Hex(),
		Gas:     hexutil.EncodeUint64(tx.Gas()),
		Value:   hexutil.EncodeBig(tx.Value()),
		Nonce:   hexutil.EncodeUint64(tx.Nonce()),
		ChainID: hexutil.EncodeBig(chainID),
	}

	// nil for contract creation
	if tx.To() != nil {
		to := tx.To().Hex()
		args.To = &to
	}

	if len(tx.Data()) > 0 {
		args.Data = hexutil.Encode(tx.Data())
	}

	switch tx.Type() {
	case types.DynamicFeeTxType:
		maxFee := hexutil.EncodeBig(tx.GasFeeCap())
		maxTip := hexutil.EncodeBig(tx.GasTipCap())
		args.MaxFeePerGas = &maxFee
		args.MaxPriorityFeePerGas = &maxTip
	default:
		gasPrice := hexutil.EncodeBig(tx.GasPrice())
		args.GasPrice = &gasPrice
	}

	return args
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// txArgs is the eth_signTransaction parameter object.
type txArgs struct {
	From                 string  `json:"from"`
	To                   *string `json:"to,omitempty"`
	Gas                  string  `json:"gas"`
	GasPrice             *string `json:"gasPrice,omitempty"`
	MaxFeePerGas         *string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *string `json:"maxPriorityFeePerGas,omitempty"`
	Value                string  `json:"value"`
	Nonce                string  `json:"nonce"`
	Data                 string  `json:"data,omitempty"`
	ChainID              string  `json:"chainId"`
}
