// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media holds the value types shared by the resolution strategies.
package media

// Strategy names the path that produced a candidate.
type Strategy string

const (
	StrategyCache        Strategy = "cache"
	StrategyOfficialAPI  Strategy = "official_api"
	StrategyEmbeddedJSON Strategy = "embedded_json"
	StrategyBruteSearch  Strategy = "brute_search"
)

// Candidate is a direct media URL plus how it was found.
type Candidate struct {
	URL      string
	Strategy Strategy
	Quality  Quality
}

// Status tags a strategy outcome.
type Status int

const (
	StatusNotFound Status = iota
	StatusFound
	StatusBlocked
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusBlocked:
		return "blocked"
	case StatusError:
		return "error"
	default:
		return "not_found"
	}
}

// Outcome is the result of one strategy attempt. Only StatusFound carries a
// usable Candidate; Blocked and Error are reported separately for logs and
// metrics but callers treat them like NotFound.
type Outcome struct {
	Status    Status
	Candidate Candidate
	// Detail is the offending URL for Blocked.
	Detail string
	Err    error
}

// OK reports whether the outcome carries a candidate.
func (o Outcome) OK() bool { return o.Status == StatusFound }

func Found(c Candidate) Outcome { return Outcome{Status: StatusFound, Candidate: c} }

func NotFound() Outcome { return Outcome{Status: StatusNotFound} }

func Blocked(rawURL string) Outcome { return Outcome{Status: StatusBlocked, Detail: rawURL} }

func Failed(err error) Outcome { return Outcome{Status: StatusError, Err: err} }
