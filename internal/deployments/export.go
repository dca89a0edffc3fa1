package deployments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/klauspost/compress/zstd"
)

// Exported is hardhat-deploy's `--export` document for one network.
type Exported struct {
	Name      string                      `json:"name"`
	ChainID   string                      `json:"chainId"`
	Contracts map[string]ExportedContract `json:"contracts"`
}

// ExportedContract is one contract entry of Exported.
type ExportedContract struct {
	Address common.Address  `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

// BuildExport collects the records of network into an export document.
func BuildExport(ctx context.Context, store Store, network string, chainID uint64) (*Exported, error) {
	records, err := store.List(ctx, network)
	if err != nil {
		return nil, err
	}

	out := &Exported{
		Name:      network,
		ChainID:   strconv.FormatUint(chainID, 10),
		Contracts: make(map[string]ExportedContract, len(records)),
	}
	for _, d := range records {
		if d.Pending {
			continue
		}
		out.Contracts[d.Name] = ExportedContract{Address: d.Address, ABI: jsonOrEmpty(d.ABI)}
	}
	return out, nil
}

// Export writes the export document of network to w, zstd-compressed when
// compress is set.
func Export(ctx context.Context, store Store, network string, chainID uint64, w io.Writer, compress bool) error {
	doc, err := BuildExport(ctx, store, network, chainID)
	if err != nil {
		return err
	}

	if !compress {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		zw.Close()
		return fmt.Errorf("encode export: %w", err)
	}
	return zw.Close()
}
