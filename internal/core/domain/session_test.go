package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"
)

func TestNewSession_ComputesAbsoluteExpiry(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	s := NewSession("abc", 3600, now)

	if s.Token != "abc" {
		t.Errorf("Token = %q, want abc", s.Token)
	}
	if want := int64(1_700_000_000_000 + 3_600_000); s.ExpiresAt != want {
		t.Errorf("ExpiresAt = %d, want %d", s.ExpiresAt, want)
	}
}

func TestNewSession_SaturatesLongLifetimes(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name      string
		expiresIn int64
		want      int64
	}{
		{"2^33 seconds", 1 << 33, now.UnixMilli() + (1<<33)*1000},
		{"1e10 seconds", 10_000_000_000, now.UnixMilli() + 10_000_000_000*1000},
		{"2^62 seconds", 1 << 62, MaxExpiresAt},
		{"max int64", math.MaxInt64, MaxExpiresAt},
		{"min int64", math.MinInt64, now.UnixMilli()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("abc", tt.expiresIn, now)
			if s.ExpiresAt != tt.want {
				t.Errorf("ExpiresAt = %d, want %d", s.ExpiresAt, tt.want)
			}
			if got := s.IsValidAt(now); got != (tt.expiresIn > 0) {
				t.Errorf("IsValidAt(now) = %v for expiresIn %d", got, tt.expiresIn)
			}
			if _, err := json.Marshal(s.ExpiresAtTime()); err != nil {
				t.Errorf("expiry does not encode: %v", err)
			}
		})
	}
}

func TestSession_IsValidAt(t *testing.T) {
	now := time.UnixMilli(1_000_000)

	tests := []struct {
		name    string
		session *Session
		at      time.Time
		want    bool
	}{
		{"nil session", nil, now, false},
		{"empty token", &Session{Token: "", ExpiresAt: now.UnixMilli() + 1000}, now, false},
		{"future expiry", &Session{Token: "t", ExpiresAt: now.UnixMilli() + 1000}, now, true},
		{"exactly at expiry", &Session{Token: "t", ExpiresAt: now.UnixMilli()}, now, false},
		{"past expiry", &Session{Token: "t", ExpiresAt: now.UnixMilli() - 1}, now, false},
		{"zero lifetime", NewSession("t", 0, now), now, false},
		{"negative lifetime", NewSession("t", -5, now), now, false},
		{"one ms before expiry", &Session{Token: "t", ExpiresAt: now.UnixMilli() + 1}, now, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.IsValidAt(tt.at); got != tt.want {
				t.Errorf("IsValidAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSession_Remaining(t *testing.T) {
	now := time.UnixMilli(10_000)
	s := &Session{Token: "t", ExpiresAt: 12_000}

	if got := s.Remaining(now); got != 2*time.Second {
		t.Errorf("Remaining() = %v, want 2s", got)
	}
	if got := s.Remaining(time.UnixMilli(20_000)); got != 0 {
		t.Errorf("Remaining() after expiry = %v, want 0", got)
	}
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"valid", Credentials{Username: "alice", Password: "pw"}, false},
		{"blank username", Credentials{Username: "  ", Password: "pw"}, true},
		{"empty password", Credentials{Username: "alice"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMissingArgument) {
				t.Errorf("Validate() error = %v, want ErrMissingArgument", err)
			}
		})
	}
}

func TestLogValue_HidesSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Info("login",
		"creds", Credentials{Username: "alice", Password: "hunter2"},
		"session", &Session{Token: "tok-secret", ExpiresAt: 5},
		"result", &LoginResult{AccessToken: "tok-secret", TokenType: "bearer", ExpiresIn: 60},
	)

	out := buf.String()
	for _, secret := range []string{"hunter2", "tok-secret"} {
		if strings.Contains(out, secret) {
			t.Errorf("log output leaks %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, "alice") {
		t.Errorf("log output should keep username: %s", out)
	}
}

func TestView_String(t *testing.T) {
	if fmt.Sprint(ViewLogin) != "login" {
		t.Errorf("ViewLogin = %q", ViewLogin)
	}
	if ViewAuthenticated.String() != "home" {
		t.Errorf("ViewAuthenticated = %q", ViewAuthenticated)
	}
}
