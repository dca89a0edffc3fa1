package deployments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const chainIDFile = ".chainId"

// FileStore keeps records as deployments/<network>/<Name>.json, the layout
// hardhat-deploy uses, so the folder can be committed next to the contracts.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) networkDir(network string) string {
	return filepath.Join(s.dir, network)
}

func (s *FileStore) recordPath(network, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.networkDir(network), name+".json"), nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, network, name string) (*Deployment, error) {
	path, err := s.recordPath(network, name)
	if err != nil {
		return nil, err
	}
	d, err := readRecord(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return d, err
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, d *Deployment) error {
	path, err := s.recordPath(d.Network, d.Name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.networkDir(d.Network), 0755); err != nil {
		return fmt.Errorf("create deployments dir: %w", err)
	}
	if err := s.bindChainID(d.Network, d.ChainID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal deployment: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// bindChainID writes the .chainId marker on first use and rejects writes
// from a different chain afterwards.
func (s *FileStore) bindChainID(network string, chainID uint64) error {
	path := filepath.Join(s.networkDir(network), chainIDFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return writeFileAtomic(path, []byte(strconv.FormatUint(chainID, 10)))
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", chainIDFile, err)
	}

	recorded, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if recorded != chainID {
		return fmt.Errorf("%w: %s holds chain %d, got %d", ErrChainIDMismatch, s.networkDir(network), recorded, chainID)
	}
	return nil
}

// ChainID returns the chain bound to network's folder, or 0 if none.
func (s *FileStore) ChainID(network string) (uint64, error) {
	data, err := os.ReadFile(filepath.Join(s.networkDir(network), chainIDFile))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

// List implements Store. Records are sorted by name.
func (s *FileStore) List(_ context.Context, network string) ([]*Deployment, error) {
	entries, err := os.ReadDir(s.networkDir(network))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read deployments dir: %w", err)
	}

	var out []*Deployment
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		d, err := readRecord(filepath.Join(s.networkDir(network), e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete implements Store. Deleting a missing record is not an error.
func (s *FileStore) Delete(_ context.Context, network, name string) error {
	path, err := s.recordPath(network, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete deployment: %w", err)
	}
	return nil
}

// Reset implements Store.
func (s *FileStore) Reset(_ context.Context, network string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.networkDir(network)); err != nil {
		return fmt.Errorf("reset deployments: %w", err)
	}
	return nil
}

func readRecord(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Deployment
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return &d, nil
}

// writeFileAtomic writes to a temp file first, then renames for atomicity.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
