package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Loader finds artifacts by contract name under a root directory. It
// understands hardhat's artifacts/ tree and foundry's out/ tree.
type Loader struct {
	root string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{root: dir}
}

// Root returns the artifacts directory.
func (l *Loader) Root() string {
	return l.root
}

// Load reads the artifact named name. A fully qualified name
// ("contracts/Palm.sol:PalmNFT") picks one source when several define the
// same contract name.
func (l *Loader) Load(name string) (*Artifact, error) {
	source, contract := splitQualified(name)

	matches, err := l.find(contract)
	if err != nil {
		return nil, err
	}

	if source != "" {
		file := filepath.Base(filepath.FromSlash(source))
		var filtered []string
		for _, m := range matches {
			if filepath.Base(filepath.Dir(m)) == file {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s in %s", ErrArtifactNotFound, name, l.root)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %s matches %s", ErrAmbiguousArtifact, name, strings.Join(matches, ", "))
	}

	return ReadFile(matches[0])
}

// find walks the tree for <contract>.json files.
func (l *Loader) find(contract string) ([]string, error) {
	want := contract + ".json"
	var matches []string

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case "build-info", "cache":
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == want {
			matches = append(matches, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (artifacts directory %s does not exist)", ErrArtifactNotFound, contract, l.root)
	}
	if err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}

	sort.Strings(matches)
	return matches, nil
}

func splitQualified(name string) (source, contract string) {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// ReadFile parses a single artifact file and its compiler information.
func ReadFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var raw struct {
		Artifact
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}

	a := raw.Artifact
	a.Path = path
	if a.ContractName == "" {
		a.ContractName = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	if len(raw.Metadata) > 0 {
		a.Compiler, err = compilerFromMetadata(raw.Metadata)
		if err != nil {
			return nil, fmt.Errorf("parse metadata of %s: %w", path, err)
		}
	} else {
		a.Compiler, err = compilerFromDebugFile(path)
		if err != nil {
			return nil, err
		}
	}

	return &a, nil
}

type solcSettings struct {
	Optimizer struct {
		Enabled bool `json:"enabled"`
		Runs    int  `json:"runs"`
	} `json:"optimizer"`
}

// compilerFromMetadata reads foundry's metadata field, which is either the
// solc metadata object or the same object encoded as a string.
func compilerFromMetadata(raw json.RawMessage) (*CompilerInfo, error) {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = json.RawMessage(s)
	}

	var md struct {
		Compiler struct {
			Version string `json:"version"`
		} `json:"compiler"`
		Settings solcSettings `json:"settings"`
	}
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, err
	}
	if md.Compiler.Version == "" {
		return nil, nil
	}
	return &CompilerInfo{
		Version:          md.Compiler.Version,
		OptimizerEnabled: md.Settings.Optimizer.Enabled,
		OptimizerRuns:    md.Settings.Optimizer.Runs,
	}, nil
}

// compilerFromDebugFile follows hardhat's <Name>.dbg.json to the build-info
// file. A missing debug file is not an error.
func compilerFromDebugFile(artifactPath string) (*CompilerInfo, error) {
	dbgPath := strings.TrimSuffix(artifactPath, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read debug file: %w", err)
	}

	var dbg struct {
		BuildInfo string `json:"buildInfo"`
	}
	if err := json.Unmarshal(data, &dbg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", dbgPath, err)
	}
	if dbg.BuildInfo == "" {
		return nil, nil
	}

	biPath := filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(dbg.BuildInfo))
	data, err = os.ReadFile(biPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read build info: %w", err)
	}

	var bi struct {
		SolcVersion     string `json:"solcVersion"`
		SolcLongVersion string `json:"solcLongVersion"`
		Input           struct {
			Settings solcSettings `json:"settings"`
		} `json:"input"`
	}
	if err := json.Unmarshal(data, &bi); err != nil {
		return nil, fmt.Errorf("parse %s: %w", biPath, err)
	}

	version := bi.SolcVersion
	if version == "" {
		version = bi.SolcLongVersion
	}
	return &CompilerInfo{
		Version:          version,
		OptimizerEnabled: bi.Input.Settings.Optimizer.Enabled,
		OptimizerRuns:    bi.Input.Settings.Optimizer.Runs,
	}, nil
}
