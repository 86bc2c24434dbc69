package match

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/escomatch/internal/rules"
	"github.com/kailas-cloud/escomatch/internal/scoring"
)

// DefaultVersionLabel prefixes the fingerprint when no label is configured.
const DefaultVersionLabel = "v1"

// Fingerprint derives the matching_version tag: label + "+" + the first 8 hex
// digits of a sha256 over scoring parameters, model name and rule sources.
func Fingerprint(label string, cfg scoring.Config, model string, layer *rules.RuleLayerConfig) string {
	if label == "" {
		label = DefaultVersionLabel
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

	h := sha256.New()
	_, _ = fmt.Fprintf(h, "weights=%s,%s,%s\n", f(cfg.Weights.Title), f(cfg.Weights.Skills), f(cfg.Weights.Description))
	_, _ = fmt.Fprintf(h, "fallback=%s,%s,%s\n", f(cfg.Fallback.Title), f(cfg.Fallback.Skills), f(cfg.Fallback.Description))
	_, _ = fmt.Fprintf(h, "thresholds=%s,%s\n", f(cfg.Thresholds.Confirm), f(cfg.Thresholds.Review))
	_, _ = fmt.Fprintf(h, "skills=%s,%s\n", f(cfg.Skills.Match), f(cfg.Skills.MinScore))
	_, _ = fmt.Fprintf(h, "model=%s\n", model)
	layer.WriteFingerprint(h)

	return label + "+" + hex.EncodeToString(h.Sum(nil))[:8]
}
