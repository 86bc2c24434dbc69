package matchstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
)

// Hash field names of a persisted match.
const (
	fieldPostingID        = "posting_id"
	fieldOccupationURI    = "occupation_uri"
	fieldOccupationLabel  = "occupation_label"
	fieldISCOCode         = "isco_code"
	fieldTitleScore       = "title_score"
	fieldSkillsScore      = "skills_score"
	fieldDescriptionScore = "description_score"
	fieldFinalScore       = "final_score"
	fieldStatus           = "status"
	fieldMethod           = "method"
	fieldRuleID           = "rule_id"
	fieldFamilies         = "families"
	fieldNeverConfirm     = "never_confirm"
	fieldAlternatives     = "alternatives"
	fieldMatchingVersion  = "matching_version"
	fieldComputedAt       = "computed_at"
)

// resultToHash converts a match result to a map for HSET.
// Every field is always written so an overwrite never leaves stale values behind.
func resultToHash(r dommatch.Result) (map[string]string, error) {
	alts := "[]"
	if len(r.Alternatives) > 0 {
		b, err := json.Marshal(r.Alternatives)
		if err != nil {
			return nil, fmt.Errorf("marshal alternatives: %w", err)
		}
		alts = string(b)
	}
	return map[string]string{
		fieldPostingID:        r.PostingID,
		fieldOccupationURI:    r.OccupationURI,
		fieldOccupationLabel:  r.OccupationLabel,
		fieldISCOCode:         r.ISCOCode,
		fieldTitleScore:       formatScore(r.TitleScore),
		fieldSkillsScore:      formatScore(r.SkillsScore),
		fieldDescriptionScore: formatScore(r.DescriptionScore),
		fieldFinalScore:       formatScore(r.FinalScore),
		fieldStatus:           string(r.Status),
		fieldMethod:           r.Method,
		fieldRuleID:           r.RuleID,
		fieldFamilies:         strings.Join(r.Families, ","),
		fieldNeverConfirm:     strconv.FormatBool(r.NeverConfirm),
		fieldAlternatives:     alts,
		fieldMatchingVersion:  r.MatchingVersion,
		fieldComputedAt:       r.ComputedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// resultFromHash hydrates a match result from an HGETALL result map.
func resultFromHash(m map[string]string) (dommatch.Result, error) {
	r := dommatch.Result{
		PostingID:       m[fieldPostingID],
		OccupationURI:   m[fieldOccupationURI],
		OccupationLabel: m[fieldOccupationLabel],
		ISCOCode:        m[fieldISCOCode],
		Method:          m[fieldMethod],
		RuleID:          m[fieldRuleID],
		MatchingVersion: m[fieldMatchingVersion],
	}

	status, err := dommatch.ParseStatus(m[fieldStatus])
	if err != nil {
		return dommatch.Result{}, err
	}
	r.Status = status

	scores := []struct {
		name string
		dst  *float64
	}{
		{fieldTitleScore, &r.TitleScore},
		{fieldSkillsScore, &r.SkillsScore},
		{fieldDescriptionScore, &r.DescriptionScore},
		{fieldFinalScore, &r.FinalScore},
	}
	for _, s := range scores {
		v, err := decodeScore(m[s.name])
		if err != nil {
			return dommatch.Result{}, fmt.Errorf("invalid %s: %w", s.name, err)
		}
		*s.dst = v
	}

	if f := m[fieldFamilies]; f != "" {
		r.Families = strings.Split(f, ",")
	}
	if nc := m[fieldNeverConfirm]; nc != "" {
		if r.NeverConfirm, err = strconv.ParseBool(nc); err != nil {
			return dommatch.Result{}, fmt.Errorf("invalid never_confirm: %w", err)
		}
	}
	if alts := m[fieldAlternatives]; alts != "" && alts != "[]" {
		if err := json.Unmarshal([]byte(alts), &r.Alternatives); err != nil {
			return dommatch.Result{}, fmt.Errorf("unmarshal alternatives: %w", err)
		}
	}
	if ts := m[fieldComputedAt]; ts != "" {
		if r.ComputedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return dommatch.Result{}, fmt.Errorf("invalid computed_at: %w", err)
		}
	}
	return r, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// decodeScore is the single adapter for score values written by older writers:
// decimal strings, or little-endian packed float32 (4 bytes) / float64 (8 bytes).
// An absent field decodes as 0.
func decodeScore(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, nil
	}
	b := []byte(raw)
	var v float64
	switch len(b) {
	case 4:
		v = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case 8:
		v = math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		return 0, fmt.Errorf("undecodable score %q", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("undecodable score %q", raw)
	}
	return v, nil
}
