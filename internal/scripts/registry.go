// Package scripts holds the deployment scripts and selects which of them run.
package scripts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deploy"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deployments"
)

// Sentinel errors
var (
	ErrDuplicateScript = errors.New("palmdeploy: duplicate script id")
	ErrUnknownTag      = errors.New("palmdeploy: no script has tag")
	ErrDependencyCycle = errors.New("palmdeploy: dependency cycle")
	ErrNoNamedAccount  = errors.New("palmdeploy: named account not configured")
)

// Deployments is what a script uses to deploy and look up contracts.
type Deployments interface {
	Deploy(ctx context.Context, name string, opts deploy.Options) (*deploy.Result, error)
	Get(ctx context.Context, name string) (*deployments.Deployment, error)
}

// Env is handed to every script.
type Env struct {
	Network     string
	ChainID     uint64
	Deployments Deployments
	Logger      *slog.Logger
	Out         io.Writer

	// Accounts resolves the named accounts of Network.
	Accounts func(ctx context.Context) (map[string]common.Address, error)
	// Account resolves a single role. When set, NamedAccount uses it so
	// roles a script never asks for cannot fail the run.
	Account func(ctx context.Context, role string) (common.Address, error)
}

// NamedAccounts resolves role names to addresses.
func (e *Env) NamedAccounts(ctx context.Context) (map[string]common.Address, error) {
	if e.Accounts == nil {
		return map[string]common.Address{}, nil
	}
	return e.Accounts(ctx)
}

// NamedAccount resolves one role.
func (e *Env) NamedAccount(ctx context.Context, role string) (common.Address, error) {
	if e.Account != nil {
		return e.Account(ctx, role)
	}
	named, err := e.NamedAccounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := named[role]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNoNamedAccount, role)
	}
	return addr, nil
}

// Script is one deployment step.
type Script struct {
	ID   string
	Tags []string
	// Dependencies are tags whose scripts must run first.
	Dependencies []string
	// Skip, when set and returning true, skips the script.
	Skip func(ctx context.Context, env *Env) (bool, error)
	Run  func(ctx context.Context, env *Env) error
}

// HasTag reports whether s carries tag.
func (s Script) HasTag(tag string) bool {
	return slices.Contains(s.Tags, tag)
}

// Registry holds the known scripts.
type Registry struct {
	scripts map[string]Script
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scripts: make(map[string]Script)}
}

// Register adds s. IDs must be unique.
func (r *Registry) Register(s Script) error {
	if s.ID == "" || s.Run == nil {
		return fmt.Errorf("script %q: id and run are required", s.ID)
	}
	if _, ok := r.scripts[s.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateScript, s.ID)
	}
	r.scripts[s.ID] = s
	return nil
}

// Scripts returns every script sorted by ID.
func (r *Registry) Scripts() []Script {
	out := make([]Script, 0, len(r.scripts))
	for _, s := range r.scripts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tags returns every tag in use, sorted.
func (r *Registry) Tags() []string {
	seen := map[string]bool{}
	var tags []string
	for _, s := range r.scripts {
		for _, t := range s.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	sort.Strings(tags)
	return tags
}

// Select returns the scripts to run for tags, in run order. With no tags
// every script runs in ID order. Otherwise scripts carrying any of the tags
// run in ID order, each preceded by the scripts its dependencies name.
func (r *Registry) Select(tags []string) ([]Script, error) {
	all := r.Scripts()
	if len(tags) == 0 {
		return all, nil
	}

	for _, tag := range tags {
		if len(withTag(all, tag)) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
		}
	}

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(all))
	var out []Script

	var visit func(s Script, path []string) error
	visit = func(s Script, path []string) error {
		switch state[s.ID] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(append(path, s.ID), " -> "))
		}
		state[s.ID] = visiting

		for _, dep := range s.Dependencies {
			deps := withTag(all, dep)
			if len(deps) == 0 {
				return fmt.Errorf("%w: %s (dependency of %s)", ErrUnknownTag, dep, s.ID)
			}
			for _, ds := range deps {
				if err := visit(ds, append(path, s.ID)); err != nil {
					return err
				}
			}
		}

		state[s.ID] = done
		out = append(out, s)
		return nil
	}

	for _, s := range all {
		if !hasAny(s, tags) {
			continue
		}
		if err := visit(s, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func withTag(all []Script, tag string) []Script {
	var out []Script
	for _, s := range all {
		if s.HasTag(tag) {
			out = append(out, s)
		}
	}
	return out
}

func hasAny(s Script, tags []string) bool {
	for _, t := range tags {
		if s.HasTag(t) {
			return true
		}
	}
	return false
}
