// SPDX-License-Identifier: MIT

package validate

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fields runs check against a fresh Validator and returns the failing fields.
func fields(check func(v *Validator)) []string {
	v := New()
	check(v)
	var ve ValidationError
	if !errors.As(v.Err(), &ve) {
		return nil
	}
	return ve.Fields()
}

func TestBetween(t *testing.T) {
	got := fields(func(v *Validator) {
		Between(v, "retries", 3, 0, 5)
		Between(v, "retries.high", 6, 0, 5)
		Between(v, "timeout", 8*time.Second, time.Second, 9*time.Second)
		Between(v, "timeout.high", 10*time.Second, time.Second, 9*time.Second)
		Between(v, "timeout.low", 500*time.Millisecond, time.Second, 9*time.Second)
		Between(v, "sampling", 1.0, 0, 1)
		Between(v, "sampling.nan", math.NaN(), 0, 1)
	})
	want := []string{"retries.high", "timeout.high", "timeout.low", "sampling.nan"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("failing fields (-want +got):\n%s", diff)
	}
}

func TestValidator_Checks(t *testing.T) {
	tests := []struct {
		name  string
		check func(v *Validator)
		fail  bool
	}{
		{"port ok", func(v *Validator) { v.Port("f", 8080) }, false},
		{"port zero", func(v *Validator) { v.Port("f", 0) }, true},
		{"port too high", func(v *Validator) { v.Port("f", 65536) }, true},
		{"at least ok", func(v *Validator) { v.AtLeast("f", 1, 1) }, false},
		{"at least low", func(v *Validator) { v.AtLeast("f", 0, 1) }, true},
		{"not empty", func(v *Validator) { v.NotEmpty("f", "x") }, false},
		{"blank", func(v *Validator) { v.NotEmpty("f", " \t") }, true},
		{"one of", func(v *Validator) { v.OneOf("f", "redis", []string{"sqlite", "redis"}) }, false},
		{"one of is case sensitive", func(v *Validator) { v.OneOf("f", "Redis", []string{"redis"}) }, true},
		{"url", func(v *Validator) { v.URL("f", "https://api.bilibili.com", "http", "https") }, false},
		{"url any scheme", func(v *Validator) { v.URL("f", "ftp://example.com") }, false},
		{"url empty", func(v *Validator) { v.URL("f", "", "https") }, true},
		{"url no host", func(v *Validator) { v.URL("f", "https://", "https") }, true},
		{"url bare host", func(v *Validator) { v.URL("f", "example.com", "https") }, true},
		{"url scheme", func(v *Validator) { v.URL("f", "ftp://example.com", "http", "https") }, true},
		{"host", func(v *Validator) { v.Host("f", "upos-sz-mirrorcos.bilivideo.com") }, false},
		{"host with scheme", func(v *Validator) { v.Host("f", "https://a.bilivideo.com") }, true},
		{"host empty", func(v *Validator) { v.Host("f", "") }, true},
		{"cron", func(v *Validator) { v.CronSpec("f", "0 4 * * *") }, false},
		{"cron descriptor", func(v *Validator) { v.CronSpec("f", "@daily") }, false},
		{"cron bad minute", func(v *Validator) { v.CronSpec("f", "61 * * * *") }, true},
		{"cron prose", func(v *Validator) { v.CronSpec("f", "every day") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(fields(tt.check)) > 0; got != tt.fail {
				t.Errorf("failed = %v, want %v", got, tt.fail)
			}
		})
	}
}

func TestValidator_IndexedListFields(t *testing.T) {
	got := fields(func(v *Validator) {
		v.Keywords("cdn.foreign", []string{"akamai", "", "a b", "x/y"})
		v.AddrsOrPrefixes("server.trustedProxies", []string{"10.0.0.0/8", "::1", "proxy.local"})
	})
	want := []string{"cdn.foreign[1]", "cdn.foreign[2]", "cdn.foreign[3]", "server.trustedProxies[2]"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("failing fields (-want +got):\n%s", diff)
	}
}

func TestValidator_ErrIsSnapshot(t *testing.T) {
	v := New()
	v.Port("server.port", 0)
	err := v.Err()
	v.NotEmpty("server.host", "")

	var ve ValidationError
	if !errors.As(err, &ve) || len(ve.Errors()) != 1 {
		t.Fatalf("snapshot changed after later AddError: %v", err)
	}
	if want := "invalid config: server.port: must be between 1 and 65535, got 0"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if New().Err() != nil {
		t.Error("empty validator must return nil")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogLevelDebug, false},
		{"INFO", LogLevelInfo, false},
		{" warn ", LogLevelWarn, false},
		{"WARNING", LogLevelWarn, false},
		{"trace", LogLevelTrace, false},
		{"verbose", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
