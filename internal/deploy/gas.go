package deploy

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fees is the pricing of one transaction: either a legacy gas price or an
// EIP-1559 fee cap and tip.
type fees struct {
	gasPrice  *big.Int
	gasFeeCap *big.Int
	gasTipCap *big.Int
}

func (f fees) dynamic() bool {
	return f.gasFeeCap != nil
}

// suggestFees prices a transaction. A fixed gas_price on the network forces
// a legacy transaction; otherwise heads with a base fee get EIP-1559 fees.
// The network's gas multiplier scales the result.
func (d *Deployer) suggestFees(ctx context.Context) (fees, error) {
	mult := d.network.Multiplier()

	if d.network.GasPrice > 0 {
		return fees{gasPrice: new(big.Int).SetUint64(d.network.GasPrice)}, nil
	}

	head, err := d.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fees{}, fmt.Errorf("get head: %w", err)
	}

	if head.BaseFee == nil {
		price, err := d.client.SuggestGasPrice(ctx)
		if err != nil {
			return fees{}, fmt.Errorf("suggest gas price: %w", err)
		}
		return fees{gasPrice: scale(price, mult)}, nil
	}

	tip, err := d.client.SuggestGasTipCap(ctx)
	if err != nil {
		return fees{}, fmt.Errorf("suggest gas tip: %w", err)
	}
	tip = scale(tip, mult)

	// fee cap = 2 * base fee + tip
	feeCap := scale(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), mult)
	feeCap = new(big.Int).Add(feeCap, tip)

	return fees{gasFeeCap: feeCap, gasTipCap: tip}, nil
}

// scale multiplies v by m rounded to the nearest whole percent.
func scale(v *big.Int, m float64) *big.Int {
	if m == 1 || v == nil {
		return v
	}
	pct := big.NewInt(int64(math.Round(m * 100)))
	out := new(big.Int).Mul(v, pct)
	return out.Div(out, big.NewInt(100))
}

// estimateGas asks the node and adds a 20% buffer.
func (d *Deployer) estimateGas(ctx context.Context, from common.Address, to *common.Address, data []byte, f fees) (uint64, error) {
	msg := ethereum.CallMsg{
		From:  from,
		To:    to,
		Value: big.NewInt(0),
		Data:  data,
	}
	if f.dynamic() {
		msg.GasFeeCap = f.gasFeeCap
		msg.GasTipCap = f.gasTipCap
	} else {
		msg.GasPrice = f.gasPrice
	}

	gas, err := d.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas * 120 / 100, nil
}

func newTx(chainID *big.Int, nonce uint64, to *common.Address, gas uint64, data []byte, f fees) *types.Transaction {
	if f.dynamic() {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: f.gasTipCap,
			GasFeeCap: f.gasFeeCap,
			Gas:       gas,
			To:        to,
			Value:     big.NewInt(0),
			Data:      data,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: f.gasPrice,
		Gas:      gas,
		To:       to,
		Value:    big.NewInt(0),
		Data:     data,
	})
}
