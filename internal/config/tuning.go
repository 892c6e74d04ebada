package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// All fields are pointers so a partial JSON file only overrides what it
// names; the Get* accessors fall back to the built-in defaults for
// anything left nil.
type TuningConfig struct {
	// Feature detector params
	FeatureBudget *int `json:"feature_budget,omitempty"`
	FASTThreshold *int `json:"fast_threshold,omitempty"`

	// Matcher params
	MatchMaxHamming      *int  `json:"match_max_hamming,omitempty"`
	UseOptimalAssignment *bool `json:"use_optimal_assignment,omitempty"`
	MinMatches           *int  `json:"min_matches,omitempty"`

	// Transform estimator params
	RANSACIterations  *int     `json:"ransac_iterations,omitempty"`
	InlierThresholdPx *float64 `json:"inlier_threshold_px,omitempty"`
	MinInliers        *int     `json:"min_inliers,omitempty"`

	// Refinement params
	BAIterations    *int     `json:"ba_iterations,omitempty"`
	BAChainedWeight *float64 `json:"ba_chained_weight,omitempty"`

	// Pipeline params
	StepByStep *bool `json:"step_by_step,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/motion/ subpackages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.FeatureBudget != nil && *c.FeatureBudget < 1 {
		return fmt.Errorf("feature_budget must be positive, got %d", *c.FeatureBudget)
	}
	if c.FASTThreshold != nil {
		if *c.FASTThreshold < 1 || *c.FASTThreshold > 255 {
			return fmt.Errorf("fast_threshold must be between 1 and 255, got %d", *c.FASTThreshold)
		}
	}
	if c.MatchMaxHamming != nil {
		if *c.MatchMaxHamming < 0 || *c.MatchMaxHamming > 256 {
			return fmt.Errorf("match_max_hamming must be between 0 and 256, got %d", *c.MatchMaxHamming)
		}
	}
	if c.MinMatches != nil && *c.MinMatches < 4 {
		return fmt.Errorf("min_matches must be at least 4, got %d", *c.MinMatches)
	}
	if c.RANSACIterations != nil && *c.RANSACIterations < 1 {
		return fmt.Errorf("ransac_iterations must be positive, got %d", *c.RANSACIterations)
	}
	if c.InlierThresholdPx != nil && *c.InlierThresholdPx <= 0 {
		return fmt.Errorf("inlier_threshold_px must be positive, got %f", *c.InlierThresholdPx)
	}
	if c.MinInliers != nil && *c.MinInliers < 4 {
		return fmt.Errorf("min_inliers must be at least 4, got %d", *c.MinInliers)
	}
	if c.BAIterations != nil && *c.BAIterations < 0 {
		return fmt.Errorf("ba_iterations must be non-negative, got %d", *c.BAIterations)
	}
	if c.BAChainedWeight != nil {
		if *c.BAChainedWeight < 0 || *c.BAChainedWeight > 1 {
			return fmt.Errorf("ba_chained_weight must be between 0 and 1, got %f", *c.BAChainedWeight)
		}
	}
	return nil
}

// GetFeatureBudget returns the feature_budget value or the default.
func (c *TuningConfig) GetFeatureBudget() int {
	if c.FeatureBudget == nil {
		return 2048 // default
	}
	return *c.FeatureBudget
}

// GetFASTThreshold returns the fast_threshold value or the default.
func (c *TuningConfig) GetFASTThreshold() int {
	if c.FASTThreshold == nil {
		return 20
	}
	return *c.FASTThreshold
}

// GetMatchMaxHamming returns the match_max_hamming value or the default.
func (c *TuningConfig) GetMatchMaxHamming() int {
	if c.MatchMaxHamming == nil {
		return 64
	}
	return *c.MatchMaxHamming
}

// GetUseOptimalAssignment returns the use_optimal_assignment value or the default.
func (c *TuningConfig) GetUseOptimalAssignment() bool {
	if c.UseOptimalAssignment == nil {
		return false // default: mutual nearest-neighbour cross-check
	}
	return *c.UseOptimalAssignment
}

// GetMinMatches returns the min_matches value or the default.
func (c *TuningConfig) GetMinMatches() int {
	if c.MinMatches == nil {
		return 4
	}
	return *c.MinMatches
}

// GetRANSACIterations returns the ransac_iterations value or the default.
func (c *TuningConfig) GetRANSACIterations() int {
	if c.RANSACIterations == nil {
		return 500
	}
	return *c.RANSACIterations
}

// GetInlierThresholdPx returns the inlier_threshold_px value or the default.
func (c *TuningConfig) GetInlierThresholdPx() float64 {
	if c.InlierThresholdPx == nil {
		return 3.0
	}
	return *c.InlierThresholdPx
}

// GetMinInliers returns the min_inliers value or the default.
func (c *TuningConfig) GetMinInliers() int {
	if c.MinInliers == nil {
		return 4
	}
	return *c.MinInliers
}

// GetBAIterations returns the ba_iterations value or the default.
func (c *TuningConfig) GetBAIterations() int {
	if c.BAIterations == nil {
		return 10
	}
	return *c.BAIterations
}

// GetBAChainedWeight returns the ba_chained_weight value or the default.
func (c *TuningConfig) GetBAChainedWeight() float64 {
	if c.BAChainedWeight == nil {
		return 0.5
	}
	return *c.BAChainedWeight
}

// GetStepByStep returns the step_by_step value or the default.
func (c *TuningConfig) GetStepByStep() bool {
	if c.StepByStep == nil {
		return false
	}
	return *c.StepByStep
}
