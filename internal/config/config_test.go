package config

import (
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "receptionist"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		LLM:   LLMConfig{Temperature: -1},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.App.PublicBaseURL = "https://api.example.com"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.LLM.OpenAIAPIKey = "sk"
	c.Voice.ElevenLabsAPIKey = "el"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.App.PublicBaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected public base url %q", c.App.PublicBaseURL)
	}
	if c.LLM.DefaultModel != "gpt-4" || c.LLM.MaxTokens != 1000 || c.LLM.Temperature != 0.7 {
		t.Fatalf("unexpected llm defaults: %+v", c.LLM)
	}
	if c.Billing.ConvAIRatePerMinuteMicros != 20_000 || c.Billing.TelephonyRatePerMinuteMicros != 12_000 {
		t.Fatalf("unexpected billing defaults: %+v", c.Billing)
	}
	if c.Calls.ConnectingTTL != 10*time.Minute {
		t.Fatalf("unexpected connecting ttl %v", c.Calls.ConnectingTTL)
	}
}

func TestValidate_ProductionRejectsHeaderOverride(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.App.PublicBaseURL = "https://api.example.com"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.LLM.OpenAIAPIKey = "sk"
	c.Voice.ElevenLabsAPIKey = "el"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}

	c.Tenant.AllowHeaderOverride = true
	if err := c.Validate(); err == nil {
		t.Fatalf("expected header override to be rejected in production")
	}
}

func TestParseMicros(t *testing.T) {
	cases := map[string]int64{"0.02": 20_000, "0.012": 12_000, "1": 1_000_000, "0": 0}
	for in, want := range cases {
		got, err := ParseMicros(in)
		if err != nil {
			t.Fatalf("%s: unexpected err %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: expected %d, got %d", in, want, got)
		}
	}
	if _, err := ParseMicros("-1"); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}
