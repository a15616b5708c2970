package providers

import (
	"fmt"
	"time"

	"github.com/edgeopslabs/probe/pkg/config"
	"github.com/edgeopslabs/probe/pkg/discovery"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

const SourceConfig = "config"

// Definition is a stored provider: how to start it plus where it came from.
type Definition struct {
	config.ProviderConfig `yaml:",inline"`
	Source                string `yaml:"-"`
}

// Invocation resolves the definition into a discovery spec. A per-provider
// timeout wins over defaultTimeout.
func (d Definition) Invocation(defaultTimeout time.Duration) discovery.ProviderInvocationSpec {
	deadline := defaultTimeout
	if d.Timeout > 0 {
		deadline = d.Timeout
	}
	env := make(map[string]string, len(d.Env))
	for k, v := range d.Env {
		env[k] = v
	}
	return discovery.ProviderInvocationSpec{
		Executable:  d.Command,
		Arguments:   append([]string(nil), d.Args...),
		Environment: env,
		Deadline:    deadline,
	}
}

func FromConfig(cfg *config.Config) []Definition {
	defs := make([]Definition, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		defs = append(defs, Definition{ProviderConfig: p, Source: SourceConfig})
	}
	return defs
}

// Validate reports every problem at once rather than the first.
func Validate(defs []Definition) error {
	var errs []error
	seen := sets.New[string]()
	for i, def := range defs {
		label := def.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if def.Name == "" {
			errs = append(errs, fmt.Errorf("provider %s (%s): name is required", label, def.Source))
		} else if seen.Has(def.Name) {
			errs = append(errs, fmt.Errorf("provider %s (%s): duplicate name", label, def.Source))
		}
		seen.Insert(def.Name)
		if def.Command == "" {
			errs = append(errs, fmt.Errorf("provider %s (%s): command is required", label, def.Source))
		}
		if def.Timeout < 0 {
			errs = append(errs, fmt.Errorf("provider %s (%s): timeout must not be negative", label, def.Source))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// Select keeps enabled definitions, restricted to names when any are given.
// Unknown names are an error.
func Select(defs []Definition, names []string) ([]Definition, error) {
	wanted := sets.New[string](names...)
	known := sets.New[string]()
	var selected []Definition
	for _, def := range defs {
		known.Insert(def.Name)
		if wanted.Len() > 0 && !wanted.Has(def.Name) {
			continue
		}
		if def.Disabled && wanted.Len() == 0 {
			continue
		}
		selected = append(selected, def)
	}
	if missing := wanted.Difference(known); missing.Len() > 0 {
		return nil, fmt.Errorf("unknown providers: %v", sets.List(missing))
	}
	return selected, nil
}
