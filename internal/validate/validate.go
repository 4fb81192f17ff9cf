// SPDX-License-Identifier: MIT

// Package validate collects field errors for configuration checks so a bad
// config file reports every problem at once.
package validate

import (
	"cmp"
	"fmt"
	"net/netip"
	"net/url"
	"slices"
	"strings"

	pnet "github.com/ManuGH/assplayer/internal/platform/net"
	"github.com/robfig/cron/v3"
)

// Error is one failed field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError is every Error found in one pass.
type ValidationError struct {
	errs []Error
}

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errs))
	for i, err := range e.errs {
		msgs[i] = err.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Errors returns the individual failures in the order they were found.
func (e ValidationError) Errors() []Error { return e.errs }

// Fields lists the failing field names in order.
func (e ValidationError) Fields() []string {
	out := make([]string, len(e.errs))
	for i, err := range e.errs {
		out[i] = err.Field
	}
	return out
}

// Validator accumulates errors. The zero value is ready to use.
type Validator struct {
	errs []Error
}

func New() *Validator { return &Validator{} }

func (v *Validator) AddError(field, message string, value any) {
	v.errs = append(v.errs, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) IsValid() bool { return len(v.errs) == 0 }

func (v *Validator) Errors() []Error { return v.errs }

// Err returns nil or a ValidationError holding a copy of the errors so far.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return ValidationError{errs: slices.Clone(v.errs)}
}

// Between checks lo <= value <= hi. NaN never passes.
func Between[T cmp.Ordered](v *Validator, field string, value, lo, hi T) {
	if value != value || value < lo || value > hi {
		v.AddError(field, fmt.Sprintf("must be between %v and %v, got %v", lo, hi, value), value)
	}
}

// Port checks 1..65535.
func (v *Validator) Port(field string, port int) {
	Between(v, field, port, 1, 65535)
}

// AtLeast checks value >= lo.
func (v *Validator) AtLeast(field string, value, lo int) {
	if value < lo {
		v.AddError(field, fmt.Sprintf("must be at least %d, got %d", lo, value), value)
	}
}

func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "cannot be empty", value)
	}
}

func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.AddError(field, fmt.Sprintf("must be one of %v, got %q", allowed, value), value)
	}
}

// URL checks for an absolute URL with a host and one of schemes.
func (v *Validator) URL(field, value string, schemes ...string) {
	u, err := url.Parse(value)
	switch {
	case value == "":
		v.AddError(field, "cannot be empty", value)
	case err != nil:
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
	case u.Host == "":
		v.AddError(field, "URL must have a host", value)
	case len(schemes) > 0 && !slices.Contains(schemes, u.Scheme):
		v.AddError(field, fmt.Sprintf("scheme %q not allowed (want %v)", u.Scheme, schemes), value)
	}
}

// Host checks a bare hostname as accepted by the CDN optimizer.
func (v *Validator) Host(field, value string) {
	if _, err := pnet.NormalizeHost(value); err != nil {
		v.AddError(field, err.Error(), value)
	}
}

// AddrsOrPrefixes checks each entry is an IP address or CIDR prefix.
func (v *Validator) AddrsOrPrefixes(field string, entries []string) {
	for i, e := range entries {
		if _, err := netip.ParsePrefix(e); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(e); err != nil {
			v.AddError(fmt.Sprintf("%s[%d]", field, i), "must be an IP address or CIDR", e)
		}
	}
}

// CronSpec checks a five-field cron expression or a descriptor like "@daily".
func (v *Validator) CronSpec(field, spec string) {
	if _, err := cron.ParseStandard(spec); err != nil {
		v.AddError(field, fmt.Sprintf("invalid cron schedule: %v", err), spec)
	}
}

// Keywords checks host-fragment match keywords.
func (v *Validator) Keywords(field string, keywords []string) {
	for i, k := range keywords {
		f := fmt.Sprintf("%s[%d]", field, i)
		switch {
		case strings.TrimSpace(k) == "":
			v.AddError(f, "keyword cannot be empty", k)
		case strings.ContainsAny(k, " /?#"):
			v.AddError(f, "keyword must be a host fragment", k)
		}
	}
}
