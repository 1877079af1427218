package config

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/multibuild/internal/target"
)

// Catalogue returns the default catalogue with the configured target
// overrides applied and validated.
func (c *Config) Catalogue() (*target.Catalogue, error) {
	base := target.Default()
	if len(c.Targets) == 0 {
		return base, nil
	}

	overrides := make(map[string]target.Descriptor, len(c.Targets))
	var errs []error
	for id, tc := range c.Targets {
		d, _ := base.Lookup(id)
		applied, err := tc.Apply(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("targets.%s: %w", id, err))
			continue
		}
		overrides[id] = applied
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cat := base.With(overrides)
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}
