// Package artifacts reads compiled contract artifacts produced by hardhat or
// foundry and turns them into creation code.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/config"
)

// Sentinel errors
var (
	ErrArtifactNotFound  = errors.New("palmdeploy: artifact not found")
	ErrAmbiguousArtifact = errors.New("palmdeploy: artifact name is ambiguous")
	ErrUnlinkedLibrary   = errors.New("palmdeploy: bytecode has unlinked libraries")
	ErrNoBytecode        = errors.New("palmdeploy: artifact has no bytecode")
	ErrCompilerMismatch  = errors.New("palmdeploy: compiler settings mismatch")
)

// Artifact is a compiled contract.
type Artifact struct {
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         Bytecode        `json:"bytecode"`
	DeployedBytecode Bytecode        `json:"deployedBytecode"`
	LinkReferences   json.RawMessage `json:"linkReferences,omitempty"`

	// Compiler is nil when the artifact carries no compiler information.
	Compiler *CompilerInfo `json:"-"`
	// Path is the file the artifact was read from.
	Path string `json:"-"`
}

// CompilerInfo describes the solc run that produced an artifact.
type CompilerInfo struct {
	Version          string `json:"version"`
	OptimizerEnabled bool   `json:"optimizerEnabled"`
	OptimizerRuns    int    `json:"optimizerRuns,omitempty"`
}

// Bytecode is a 0x-prefixed hex string. It decodes from both the hardhat
// form ("0x...") and the foundry form ({"object": "0x..."}).
type Bytecode string

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Bytecode(normalizeHex(s))
		return nil
	}

	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("bytecode: %w", err)
	}
	*b = Bytecode(normalizeHex(obj.Object))
	return nil
}

// Empty reports whether there is no code, as for interfaces and abstract
// contracts.
func (b Bytecode) Empty() bool {
	return b == "" || b == "0x"
}

// Unlinked reports whether the code still contains library placeholders.
func (b Bytecode) Unlinked() bool {
	return strings.Contains(string(b), "__")
}

// Bytes decodes the hex.
func (b Bytecode) Bytes() ([]byte, error) {
	if b.Empty() {
		return nil, ErrNoBytecode
	}
	if b.Unlinked() {
		return nil, ErrUnlinkedLibrary
	}
	return hexutil.Decode(string(b))
}

func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "0x" + s
	}
	return s
}

// ParsedABI decodes the artifact's ABI.
func (a *Artifact) ParsedABI() (abi.ABI, error) {
	if len(a.ABI) == 0 {
		return abi.ABI{}, nil
	}
	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi of %s: %w", a.ContractName, err)
	}
	return parsed, nil
}

// CreationCode returns the bytecode followed by the ABI-encoded constructor
// arguments.
func (a *Artifact) CreationCode(args ...interface{}) ([]byte, error) {
	code, err := a.Bytecode.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.ContractName, err)
	}

	parsed, err := a.ParsedABI()
	if err != nil {
		return nil, err
	}

	if len(parsed.Constructor.Inputs) != len(args) {
		return nil, fmt.Errorf("%s: constructor takes %d arguments, got %d",
			a.ContractName, len(parsed.Constructor.Inputs), len(args))
	}
	if len(args) == 0 {
		return code, nil
	}

	encoded, err := parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("%s: encode constructor arguments: %w", a.ContractName, err)
	}
	return append(code, encoded...), nil
}

// CheckCompiler compares the artifact's compiler with the configured one.
// Artifacts without compiler information pass.
func CheckCompiler(a *Artifact, want config.Solidity) error {
	if a.Compiler == nil || want.Version == "" {
		return nil
	}

	got := baseVersion(a.Compiler.Version)
	if got != "" && got != baseVersion(want.Version) {
		return fmt.Errorf("%w: %s was compiled with solc %s, config wants %s",
			ErrCompilerMismatch, a.ContractName, got, want.Version)
	}
	if a.Compiler.OptimizerEnabled != want.Optimizer.Enabled {
		return fmt.Errorf("%w: %s optimizer enabled=%t, config wants %t",
			ErrCompilerMismatch, a.ContractName, a.Compiler.OptimizerEnabled, want.Optimizer.Enabled)
	}
	return nil
}

// baseVersion strips a leading "v" and any "+commit..." build suffix.
func baseVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}
	return v
}
