// Package ranking fuses dense and sparse candidate scores into a single ranked list.
package ranking

import "fmt"

// Fusion strategies.
const (
	FusionWeighted = "weighted"
	FusionRRF      = "rrf"
)

// FusionConfig holds the tunable parameters of the fusion step.
type FusionConfig struct {
	// Method is FusionWeighted or FusionRRF.
	Method string
	// DenseWeight and SparseWeight scale the channels in weighted fusion.
	DenseWeight  float64
	SparseWeight float64
	// RRFK is the reciprocal rank constant.
	RRFK float64
}

// DefaultFusionConfig returns equal-weight weighted fusion.
func DefaultFusionConfig() *FusionConfig {
	return &FusionConfig{
		Method:       FusionWeighted,
		DenseWeight:  0.5,
		SparseWeight: 0.5,
		RRFK:         60,
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *FusionConfig) ApplyDefaults() {
	defaults := DefaultFusionConfig()

	if c.Method == "" {
		c.Method = defaults.Method
	}
	if c.DenseWeight == 0 && c.SparseWeight == 0 {
		c.DenseWeight = defaults.DenseWeight
		c.SparseWeight = defaults.SparseWeight
	}
	if c.RRFK == 0 {
		c.RRFK = defaults.RRFK
	}
}

// Validate rejects unknown methods and negative parameters.
func (c *FusionConfig) Validate() error {
	switch c.Method {
	case FusionWeighted, FusionRRF:
	default:
		return fmt.Errorf("unknown fusion method: %s (supported: weighted, rrf)", c.Method)
	}
	if c.DenseWeight < 0 || c.SparseWeight < 0 {
		return fmt.Errorf("fusion weights must not be negative")
	}
	if c.RRFK <= 0 {
		return fmt.Errorf("rrf k must be positive")
	}
	return nil
}
