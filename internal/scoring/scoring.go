// Package scoring fuses title, skills and description similarity into one
// final score and maps it to a match status.
package scoring

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/match"
	"github.com/kailas-cloud/escomatch/internal/domain/vector"
)

// Status thresholds.
const (
	ConfirmThreshold = 0.60
	ReviewThreshold  = 0.50
)

// Skills signal thresholds.
const (
	// SkillMatchThreshold is the best-similarity a posting skill needs to count as matched.
	SkillMatchThreshold = 0.50
	// MinSkillsScore is the skills score below which the fallback weighting applies.
	MinSkillsScore = 0.35
)

// WeightTolerance bounds the deviation of a weight sum from 1.
const WeightTolerance = 1e-6

// Weights are the fusion coefficients of the three signals.
type Weights struct {
	Title       float64 `yaml:"title" json:"title"`
	Skills      float64 `yaml:"skills" json:"skills"`
	Description float64 `yaml:"description" json:"description"`
}

// Default weight sets.
var (
	DefaultWeights         = Weights{Title: 0.50, Skills: 0.40, Description: 0.10}
	DefaultFallbackWeights = Weights{Title: 0.85, Skills: 0, Description: 0.15}
)

// Sum returns the total weight.
func (w Weights) Sum() float64 { return w.Title + w.Skills + w.Description }

// Validate requires non-negative weights summing to 1. It never renormalizes.
func (w Weights) Validate() error {
	if w.Title < 0 || w.Skills < 0 || w.Description < 0 {
		return fmt.Errorf("%w: negative weight in %+v", domain.ErrInvalidConfig, w)
	}
	if math.Abs(w.Sum()-1) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1.0", domain.ErrInvalidConfig, w.Sum())
	}
	return nil
}

// Thresholds are the status cut-offs.
type Thresholds struct {
	Confirm float64 `yaml:"confirm" json:"confirm"`
	Review  float64 `yaml:"review" json:"review"`
}

// DefaultThresholds returns the stock cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{Confirm: ConfirmThreshold, Review: ReviewThreshold}
}

// Validate requires 0 <= review <= confirm <= 1.
func (t Thresholds) Validate() error {
	if t.Review < 0 || t.Confirm > 1 || t.Review > t.Confirm {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= review (%v) <= confirm (%v) <= 1",
			domain.ErrInvalidConfig, t.Review, t.Confirm)
	}
	return nil
}

// Classify maps a final score to a terminal status. With neverConfirm the best
// reachable status is NEEDS_REVIEW.
func (t Thresholds) Classify(score float64, neverConfirm bool) match.Status {
	switch {
	case score >= t.Confirm && !neverConfirm:
		return match.StatusConfirmed
	case score >= t.Review:
		return match.StatusNeedsReview
	default:
		return match.StatusRejected
	}
}

// SkillsThresholds configure the skills signal.
type SkillsThresholds struct {
	Match    float64 `yaml:"match" json:"match"`
	MinScore float64 `yaml:"min_score" json:"min_score"`
}

// Config is the complete scoring configuration.
type Config struct {
	Weights    Weights          `yaml:"weights" json:"weights"`
	Fallback   Weights          `yaml:"fallback_weights" json:"fallback_weights"`
	Thresholds Thresholds       `yaml:"thresholds" json:"thresholds"`
	Skills     SkillsThresholds `yaml:"skills" json:"skills"`
}

// DefaultConfig returns the stock scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights:    DefaultWeights,
		Fallback:   DefaultFallbackWeights,
		Thresholds: DefaultThresholds(),
		Skills:     SkillsThresholds{Match: SkillMatchThreshold, MinScore: MinSkillsScore},
	}
}

// Validate checks every part of the config.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	if err := c.Fallback.Validate(); err != nil {
		return fmt.Errorf("fallback_weights: %w", err)
	}
	if c.Fallback.Skills != 0 {
		return fmt.Errorf("%w: fallback_weights.skills must be 0", domain.ErrInvalidConfig)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.Skills.Match < 0 || c.Skills.Match > 1 || c.Skills.MinScore < 0 || c.Skills.MinScore > 1 {
		return fmt.Errorf("%w: skills thresholds must be in [0,1]", domain.ErrInvalidConfig)
	}
	return nil
}

// Signals are the per-candidate similarity inputs.
type Signals struct {
	Title       float64
	Skills      float64
	Description float64
	// HasSkills is false when the posting carried no extracted skills.
	HasSkills bool
}

// Fused is the outcome of fusion.
type Fused struct {
	Title       float64
	Skills      float64
	Description float64
	Final       float64
	// Fallback is true when the skills term was dropped.
	Fallback bool
}

// Fuse combines clipped signals with the normal weights, or with the fallback
// weights when the skills signal is absent or below Skills.MinScore.
func (c Config) Fuse(s Signals) Fused {
	f := Fused{
		Title:       vector.Clip01(s.Title),
		Skills:      vector.Clip01(s.Skills),
		Description: vector.Clip01(s.Description),
	}
	w := c.Weights
	if !s.HasSkills || f.Skills < c.Skills.MinScore {
		w = c.Fallback
		f.Fallback = true
	}
	f.Final = vector.Clip01(w.Title*f.Title + w.Skills*f.Skills + w.Description*f.Description)
	return f
}

// SkillsScore computes coverage * average matched quality. Each posting skill
// takes its best similarity against the occupation skills and counts when that
// reaches threshold. Vectors must be unit length.
func SkillsScore(postingSkills, occupationSkills [][]float32, threshold float64) float64 {
	total := 0
	matched := 0
	var quality float64
	for _, ps := range postingSkills {
		if len(ps) == 0 {
			continue
		}
		total++
		best := math.Inf(-1)
		for _, occ := range occupationSkills {
			if sim := vector.Dot(ps, occ); sim > best {
				best = sim
			}
		}
		if best >= threshold {
			matched++
			quality += best
		}
	}
	if total == 0 || matched == 0 {
		return 0
	}
	coverage := float64(matched) / float64(total)
	return vector.Clip01(coverage * (quality / float64(matched)))
}
