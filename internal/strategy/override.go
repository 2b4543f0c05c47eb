// Package strategy implements C7: per-task strategy override parsing,
// range validation, and merging onto the base configuration.
package strategy

import (
	"encoding/json"
	"strings"

	"github.com/gitcollab/core/internal/classerr"
)

// HTTPOverride overlays onto config.HTTPConfig.
type HTTPOverride struct {
	FollowRedirects *bool `json:"followRedirects,omitempty"`
	MaxRedirects    *int  `json:"maxRedirects,omitempty"`
}

// TLSOverride overlays onto config.TLSConfig.
type TLSOverride struct {
	InsecureSkipVerify *bool `json:"insecureSkipVerify,omitempty"`
	SkipSANWhitelist   *bool `json:"skipSanWhitelist,omitempty"`
}

// RetryOverride overlays onto config.RetryConfig.
type RetryOverride struct {
	Max    *int     `json:"max,omitempty"`
	BaseMs *int     `json:"baseMs,omitempty"`
	Factor *float64 `json:"factor,omitempty"`
	Jitter *bool    `json:"jitter,omitempty"`
}

// Override is the parsed, validated per-task strategy override, plus any
// unknown fields collected rather than rejected.
type Override struct {
	HTTP  *HTTPOverride  `json:"http,omitempty"`
	TLS   *TLSOverride   `json:"tls,omitempty"`
	Retry *RetryOverride `json:"retry,omitempty"`

	Ignored []string `json:"-"`
}

// topLevelAliases lists the accepted section names. The per-section tables
// below map snake_case and camelCase keys to their canonical camelCase
// name, so ParseOverride accepts both.
var topLevelAliases = map[string]string{"http": "http", "tls": "tls", "retry": "retry"}

var httpAliases = map[string]string{
	"followredirects":  "followRedirects",
	"follow_redirects": "followRedirects",
	"maxredirects":     "maxRedirects",
	"max_redirects":    "maxRedirects",
}

var tlsAliases = map[string]string{
	"insecureskipverify":  "insecureSkipVerify",
	"insecure_skip_verify": "insecureSkipVerify",
	"skipsanwhitelist":    "skipSanWhitelist",
	"skip_san_whitelist":  "skipSanWhitelist",
}

var retryAliases = map[string]string{
	"max":     "max",
	"basems":  "baseMs",
	"base_ms": "baseMs",
	"factor":  "factor",
	"jitter":  "jitter",
}

// ParseOverride parses raw JSON bytes (or a nil/empty payload, meaning "no
// override") into an Override. Unknown keys at any level are collected into
// Ignored rather than causing an error; out-of-range numeric values are
// rejected with a Protocol-category error.
func ParseOverride(raw []byte) (Override, error) {
	var out Override
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return out, nil
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return out, classerr.ProtocolError("strategy override must be a JSON object or null").Build()
	}

	for key, val := range generic {
		canon, known := topLevelAliases[strings.ToLower(key)]
		if !known {
			out.Ignored = append(out.Ignored, key)
			continue
		}
		switch canon {
		case "http":
			h, ignored, err := parseHTTPOverride(val)
			if err != nil {
				return out, err
			}
			out.HTTP = h
			out.Ignored = append(out.Ignored, ignored...)
		case "tls":
			tlsOverride, ignored, err := parseTLSOverride(val)
			if err != nil {
				return out, err
			}
			out.TLS = tlsOverride
			out.Ignored = append(out.Ignored, ignored...)
		case "retry":
			r, ignored, err := parseRetryOverride(val)
			if err != nil {
				return out, err
			}
			out.Retry = r
			out.Ignored = append(out.Ignored, ignored...)
		}
	}
	return out, nil
}

func parseHTTPOverride(raw json.RawMessage) (*HTTPOverride, []string, error) {
	fields, ignored, err := remapFields(raw, httpAliases)
	if err != nil {
		return nil, nil, err
	}
	out := &HTTPOverride{}
	if v, ok := fields["followRedirects"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return nil, nil, fieldTypeError("http.followRedirects")
		}
		out.FollowRedirects = &b
	}
	if v, ok := fields["maxRedirects"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return nil, nil, fieldTypeError("http.maxRedirects")
		}
		if n < 0 || n > 20 {
			return nil, nil, rangeError("http.maxRedirects", n)
		}
		out.MaxRedirects = &n
	}
	return out, ignored, nil
}

func parseTLSOverride(raw json.RawMessage) (*TLSOverride, []string, error) {
	fields, ignored, err := remapFields(raw, tlsAliases)
	if err != nil {
		return nil, nil, err
	}
	out := &TLSOverride{}
	if v, ok := fields["insecureSkipVerify"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return nil, nil, fieldTypeError("tls.insecureSkipVerify")
		}
		out.InsecureSkipVerify = &b
	}
	if v, ok := fields["skipSanWhitelist"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return nil, nil, fieldTypeError("tls.skipSanWhitelist")
		}
		out.SkipSANWhitelist = &b
	}
	return out, ignored, nil
}

func parseRetryOverride(raw json.RawMessage) (*RetryOverride, []string, error) {
	fields, ignored, err := remapFields(raw, retryAliases)
	if err != nil {
		return nil, nil, err
	}
	out := &RetryOverride{}
	if v, ok := fields["max"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return nil, nil, fieldTypeError("retry.max")
		}
		if n < 1 || n > 20 {
			return nil, nil, rangeError("retry.max", n)
		}
		out.Max = &n
	}
	if v, ok := fields["baseMs"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return nil, nil, fieldTypeError("retry.baseMs")
		}
		if n < 10 || n > 60000 {
			return nil, nil, rangeError("retry.baseMs", n)
		}
		out.BaseMs = &n
	}
	if v, ok := fields["factor"]; ok {
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return nil, nil, fieldTypeError("retry.factor")
		}
		if f < 0.5 || f > 10.0 {
			return nil, nil, rangeError("retry.factor", f)
		}
		out.Factor = &f
	}
	if v, ok := fields["jitter"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return nil, nil, fieldTypeError("retry.jitter")
		}
		out.Jitter = &b
	}
	return out, ignored, nil
}

// remapFields parses a nested object's keys through an alias table,
// returning canonical-keyed fields plus any keys it didn't recognize.
func remapFields(raw json.RawMessage, aliases map[string]string) (map[string]json.RawMessage, []string, error) {
	if len(raw) == 0 {
		return map[string]json.RawMessage{}, nil, nil
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, nil, classerr.ProtocolError("strategy override section must be a JSON object").Build()
	}
	out := make(map[string]json.RawMessage, len(generic))
	var ignored []string
	for k, v := range generic {
		canon, known := aliases[strings.ToLower(k)]
		if !known {
			ignored = append(ignored, k)
			continue
		}
		out[canon] = v
	}
	return out, ignored, nil
}

func rangeError(field string, got any) error {
	return classerr.ProtocolError("strategy override field out of range").
		WithContext("field", field).WithContext("value", got).Build()
}

func fieldTypeError(field string) error {
	return classerr.ProtocolError("strategy override field has wrong type").
		WithContext("field", field).Build()
}
