package agent

import (
	"fmt"
	"strconv"
	"time"
)

// PlaceholderKind enumerates the computed values a proof request template may
// reference. Placeholders are evaluated once, at challenge construction time.
type PlaceholderKind string

const (
	// PlaceholderThresholdBirthdate19 evaluates to the latest birthdate
	// (YYYYMMDD as an integer) a holder may have while being 19 or older.
	PlaceholderThresholdBirthdate19 PlaceholderKind = "$threshold_date_19"
	// PlaceholderNowEpoch evaluates to the current unix timestamp.
	PlaceholderNowEpoch PlaceholderKind = "$now"
)

// Evaluate resolves the placeholder as of now. It reports false for an
// unknown placeholder kind.
func (k PlaceholderKind) Evaluate(now time.Time) (int64, bool) {
	switch k {
	case PlaceholderThresholdBirthdate19:
		threshold := time.Date(now.Year()-19, now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		v, _ := strconv.ParseInt(threshold.Format("20060102"), 10, 64)
		return v, true
	case PlaceholderNowEpoch:
		return now.Unix(), true
	}

	return 0, false
}

// RequestedAttribute is one attribute group the holder must reveal.
type RequestedAttribute struct {
	Names        []string         `json:"names"`
	Restrictions []map[string]any `json:"restrictions,omitempty"`
}

// RequestedPredicate is one predicate the holder must satisfy without
// revealing the underlying value. PValue may be a literal integer or a
// PlaceholderKind resolved at build time.
type RequestedPredicate struct {
	Name         string           `json:"name"`
	PType        string           `json:"p_type"`
	PValue       any              `json:"p_value"`
	Restrictions []map[string]any `json:"restrictions,omitempty"`
}

// ProofRequestSpec is the template an operator configures; BuildProofRequest
// turns it into the wire-level proof request the agent expects.
type ProofRequestSpec struct {
	Name                string
	Version             string
	RequestedAttributes []RequestedAttribute
	RequestedPredicates []RequestedPredicate
}

// DefaultAgeProofRequest is the age-over-19 person credential template.
func DefaultAgeProofRequest() ProofRequestSpec {
	return ProofRequestSpec{
		Name:    "age-verification",
		Version: "1.0",
		RequestedAttributes: []RequestedAttribute{
			{
				Names: []string{"given_names", "picture"},
				Restrictions: []map[string]any{
					{"schema_name": "Person"},
				},
			},
		},
		RequestedPredicates: []RequestedPredicate{
			{
				Name:   "birthdate_dateint",
				PType:  "<=",
				PValue: PlaceholderThresholdBirthdate19,
				Restrictions: []map[string]any{
					{"schema_name": "Person"},
				},
			},
		},
	}
}

// BuildProofRequest labels the requested attributes and predicates and
// resolves placeholder values as of now.
func BuildProofRequest(spec ProofRequestSpec, now time.Time) map[string]any {
	attrs := make(map[string]any, len(spec.RequestedAttributes))
	for i, attr := range spec.RequestedAttributes {
		attrs[fmt.Sprintf("req_attr_%d", i)] = attr
	}

	preds := make(map[string]any, len(spec.RequestedPredicates))
	for i, pred := range spec.RequestedPredicates {
		resolved := pred
		if kind, ok := pred.PValue.(PlaceholderKind); ok {
			if v, known := kind.Evaluate(now); known {
				resolved.PValue = v
			}
		} else if s, ok := pred.PValue.(string); ok {
			if v, known := PlaceholderKind(s).Evaluate(now); known {
				resolved.PValue = v
			}
		}
		preds[fmt.Sprintf("req_pred_%d", i)] = resolved
	}

	return map[string]any{
		"name":                 spec.Name,
		"version":              spec.Version,
		"requested_attributes": attrs,
		"requested_predicates": preds,
	}
}
