// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// DefaultQuantiles are the percentiles reported by default.
var DefaultQuantiles = []float64{2.5, 25, 50, 75, 97.5}

// Options controls a statistics pass.
//
// Zero values are not defaults; start from DefaultOptions().
type Options struct {
	// Alpha sets the HPD level to 1-Alpha.
	Alpha float64 `json:"alpha" yaml:"alpha" validate:"gt=0,lt=1"`

	// Start drops the first Start draws of every chain (burn-in).
	Start int `json:"start" yaml:"start" validate:"gte=0"`

	// Batches is the number of batches for the batch-means MC error.
	Batches int `json:"batches" yaml:"batches" validate:"gte=1"`

	// Chain selects one chain of a multi-chain trace; -1 pools all chains.
	Chain int `json:"chain" yaml:"chain" validate:"gte=-1"`

	// Quantiles are percentiles in [0, 100]. Empty means DefaultQuantiles.
	Quantiles []float64 `json:"quantiles,omitempty" yaml:"quantiles" validate:"omitempty,dive,gte=0,lte=100"`
}

// DefaultOptions returns alpha 0.05, no burn-in, 100 batches, all chains.
func DefaultOptions() Options {
	return Options{
		Alpha:     0.05,
		Start:     0,
		Batches:   100,
		Chain:     -1,
		Quantiles: slices.Clone(DefaultQuantiles),
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalidOptions, fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

func (o Options) quantiles() []float64 {
	if len(o.Quantiles) == 0 {
		return DefaultQuantiles
	}
	return o.Quantiles
}
