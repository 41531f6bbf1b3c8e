// Package claims validates a decoded JWT payload against temporal and
// identity rules, and produces a step-by-step trace explaining which
// checks ran and why they passed or failed.
package claims

import (
	"fmt"
	"time"

	"github.com/jhahn/jwtworkbench/internal/apperr"
)

// Rules describes what a Validate call should check. Zero-value Rules
// performs the temporal checks (exp/nbf) with no leeway and nothing else.
type Rules struct {
	Now    time.Time     // defaults to time.Now() if zero
	Leeway time.Duration // clock-skew allowance applied to exp/nbf

	// IgnoreExp skips the exp check entirely, even when the claim is
	// present and in the past. Useful for inspecting an expired token
	// without the verify call failing on expiry alone.
	IgnoreExp bool

	ExpectedIssuer   string   // checked only if non-empty
	ExpectedSubject  string   // checked only if non-empty
	ExpectedAudience []string // checked only if non-empty; passes if any entry matches the payload aud set

	// Require lists top-level claim names that must merely be present
	// (any value, including null), independent of the checks above. An
	// absent "exp" is not itself an error unless "exp" is named here —
	// the temporal check below only fires when the claim is present.
	Require []string
}

// Step is one entry in a validation trace: the name of the check, whether
// it ran, and whether it passed.
type Step struct {
	Check  string `json:"check"`
	Ran    bool   `json:"ran"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of Validate: nil Err means every check passed.
type Result struct {
	Trace []Step
	Err   error
}

// Validate checks payload against rules and returns a full trace regardless
// of outcome; Result.Err is the first failing check's error, wrapped as
// apperr.ClaimInvalid. Checks run in a fixed order: Require, then exp, nbf,
// iss, sub, aud.
func Validate(payload map[string]any, rules Rules) Result {
	now := rules.Now
	if now.IsZero() {
		now = time.Now()
	}

	var trace []Step
	var firstErr error
	record := func(check string, ran, passed bool, detail string) {
		trace = append(trace, Step{Check: check, Ran: ran, Passed: passed, Detail: detail})
		if ran && !passed && firstErr == nil {
			firstErr = apperr.New(apperr.ClaimInvalid, fmt.Sprintf("%s: %s", check, detail))
		}
	}

	for _, name := range rules.Require {
		_, present := payload[name]
		detail := ""
		if !present {
			detail = fmt.Sprintf("required claim %q is missing", name)
		}
		record("require:"+name, true, present, detail)
	}

	// exp: token must not be expired, checked only if the claim is present
	// and the caller hasn't asked to ignore it.
	if rules.IgnoreExp {
		record("exp", false, true, "")
	} else if raw, present := payload["exp"]; present {
		exp, ok := numericToTime(raw)
		if !ok {
			record("exp", true, false, "exp claim is not a valid numeric date")
		} else {
			ok := now.Before(exp.Add(rules.Leeway))
			detail := ""
			if !ok {
				detail = fmt.Sprintf("token expired at %s", exp.Format(time.RFC3339))
			}
			record("exp", true, ok, detail)
		}
	} else {
		record("exp", false, true, "")
	}

	// nbf: token must not be used before this time, checked only if present.
	if raw, present := payload["nbf"]; present {
		nbf, ok := numericToTime(raw)
		if !ok {
			record("nbf", true, false, "nbf claim is not a valid numeric date")
		} else {
			ok := !now.Add(rules.Leeway).Before(nbf)
			detail := ""
			if !ok {
				detail = fmt.Sprintf("token not valid until %s", nbf.Format(time.RFC3339))
			}
			record("nbf", true, ok, detail)
		}
	} else {
		record("nbf", false, true, "")
	}

	if rules.ExpectedIssuer != "" {
		iss, _ := payload["iss"].(string)
		ok := iss == rules.ExpectedIssuer
		detail := ""
		if !ok {
			detail = fmt.Sprintf("expected iss %q, got %q", rules.ExpectedIssuer, iss)
		}
		record("iss", true, ok, detail)
	} else {
		record("iss", false, true, "")
	}

	if rules.ExpectedSubject != "" {
		sub, _ := payload["sub"].(string)
		ok := sub == rules.ExpectedSubject
		detail := ""
		if !ok {
			detail = fmt.Sprintf("expected sub %q, got %q", rules.ExpectedSubject, sub)
		}
		record("sub", true, ok, detail)
	} else {
		record("sub", false, true, "")
	}

	if len(rules.ExpectedAudience) > 0 {
		ok, detail := audienceMatches(payload["aud"], rules.ExpectedAudience)
		record("aud", true, ok, detail)
	} else {
		record("aud", false, true, "")
	}

	return Result{Trace: trace, Err: firstErr}
}

// audienceMatches reports whether the payload's aud (a string or an array
// of strings) intersects the expected audience set. Membership is
// order-irrelevant and case-sensitive.
func audienceMatches(aud any, expected []string) (bool, string) {
	want := make(map[string]bool, len(expected))
	for _, e := range expected {
		want[e] = true
	}

	var got []string
	switch v := aud.(type) {
	case string:
		got = []string{v}
	case []any:
		for _, a := range v {
			if s, ok := a.(string); ok {
				got = append(got, s)
			}
		}
	default:
		return false, "aud claim is missing or not a string/array"
	}

	for _, g := range got {
		if want[g] {
			return true, ""
		}
	}
	return false, fmt.Sprintf("expected aud %v, got %v", expected, got)
}

// numericToTime converts a JSON-decoded NumericDate (float64 via
// encoding/json, or int/int64 when the payload was built in Go) to a
// time.Time. Any other type, json.Number included, is reported as not numeric.
func numericToTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	default:
		return time.Time{}, false
	}
}
