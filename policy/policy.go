// Package policy implements the per-source URL admission predicate. It is
// pure and allocation-light so it can be called once per discovered URL
// without shared mutable state.
package policy

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Rejection reasons. The production return value is a boolean; reasons exist
// for the diagnostic mode of the filter endpoint.
const (
	ReasonOK             = "ok"
	ReasonEmptyURL       = "empty_url"
	ReasonHostNotAllowed = "host_not_allowed"
	ReasonExcludeStrings = "exclude_strings"
	ReasonLanguage       = "language_excludes"
	ReasonRequireMissing = "require_strings_missing"
)

// Policy is the typed form of a source's JSON policy blob. Every field is
// optional; an empty field means "no constraint on that axis".
type Policy struct {
	BaseURLs         []string `json:"base_urls"`
	RequireStrings   []string `json:"require_strings"`
	ExcludeStrings   []string `json:"exclude_strings"`
	LanguageExcludes []string `json:"language_excludes"`
}

// Decision is the diagnostic result of evaluating a URL against a policy.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reason  string   `json:"reason"`
	Matched []string `json:"matched,omitempty"`
	Host    string   `json:"host,omitempty"`
	Path    string   `json:"path,omitempty"`
}

// rawPolicy tolerates both JSON lists and comma-separated strings for every
// field, matching what operators actually put in the policy column.
type rawPolicy struct {
	BaseURLs         json.RawMessage `json:"base_urls"`
	RequireStrings   json.RawMessage `json:"require_strings"`
	ExcludeStrings   json.RawMessage `json:"exclude_strings"`
	LanguageExcludes json.RawMessage `json:"language_excludes"`
}

// ParsePolicy decodes a policy blob. A nil or empty blob yields the
// no-constraint policy.
func ParsePolicy(blob json.RawMessage) (Policy, error) {
	var p Policy
	if len(blob) == 0 || string(blob) == "null" {
		return p, nil
	}

	var raw rawPolicy
	if err := json.Unmarshal(blob, &raw); err != nil {
		return p, fmt.Errorf("decoding policy: %w", err)
	}

	var err error
	if p.BaseURLs, err = toList(raw.BaseURLs); err != nil {
		return p, fmt.Errorf("base_urls: %w", err)
	}
	if p.RequireStrings, err = toList(raw.RequireStrings); err != nil {
		return p, fmt.Errorf("require_strings: %w", err)
	}
	if p.ExcludeStrings, err = toList(raw.ExcludeStrings); err != nil {
		return p, fmt.Errorf("exclude_strings: %w", err)
	}
	if p.LanguageExcludes, err = toList(raw.LanguageExcludes); err != nil {
		return p, fmt.Errorf("language_excludes: %w", err)
	}
	return p, nil
}

func toList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanList(list), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return cleanList(strings.Split(s, ",")), nil
}

func cleanList(in []string) []string {
	var out []string
	for _, v := range in {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// NormalizeHost lowercases a host or base-URL pattern and strips any scheme
// and a leading "www.".
func NormalizeHost(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "www.")
	return s
}

// HostAllowed reports whether host matches any base pattern. "*.suffix"
// matches only true subdomains (the bare suffix itself does not match);
// a bare leading "*" matches any host with that suffix, including the bare
// domain. An empty base list allows every host.
func HostAllowed(host string, bases []string) bool {
	if len(bases) == 0 {
		return true
	}
	host = NormalizeHost(host)
	for _, base := range bases {
		b := NormalizeHost(base)
		switch {
		case strings.HasPrefix(b, "*."):
			if strings.HasSuffix(host, "."+b[2:]) {
				return true
			}
		case strings.HasPrefix(b, "*"):
			if strings.HasSuffix(host, b[1:]) {
				return true
			}
		default:
			if host == b {
				return true
			}
		}
	}
	return false
}

// Allow is the production predicate: true when the URL passes every axis.
func (p Policy) Allow(rawURL string) bool {
	return p.Evaluate(rawURL).Allowed
}

// Evaluate applies the filter axes in fixed, short-circuiting order:
// host scope, exclude strings, language excludes (path only), require
// strings.
func (p Policy) Evaluate(rawURL string) Decision {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Decision{Allowed: false, Reason: ReasonEmptyURL}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Decision{Allowed: false, Reason: ReasonEmptyURL}
	}

	host := strings.ToLower(parsed.Hostname())
	path := strings.ToLower(parsed.Path)
	urlLower := strings.ToLower(rawURL)

	if !HostAllowed(host, p.BaseURLs) {
		return Decision{Allowed: false, Reason: ReasonHostNotAllowed, Host: host}
	}

	if matched := containsAny(urlLower, p.ExcludeStrings); len(matched) > 0 {
		return Decision{Allowed: false, Reason: ReasonExcludeStrings, Matched: matched}
	}

	if matched := containsAny(path, p.LanguageExcludes); len(matched) > 0 {
		return Decision{Allowed: false, Reason: ReasonLanguage, Matched: matched, Path: path}
	}

	if len(p.RequireStrings) > 0 {
		if matched := containsAny(urlLower, p.RequireStrings); len(matched) == 0 {
			return Decision{Allowed: false, Reason: ReasonRequireMissing}
		}
	}

	return Decision{Allowed: true, Reason: ReasonOK, Host: host, Path: path}
}

func containsAny(haystack string, needles []string) []string {
	var matched []string
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(n)) {
			matched = append(matched, n)
		}
	}
	return matched
}
