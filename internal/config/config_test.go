package config

import (
	"os"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	os.Clearenv()
	os.Setenv("TOKEN_SECRET", "test-secret")
	os.Setenv("GITHUB_TOKEN", "gh-token")
	os.Setenv("GITHUB_OWNER", "acme")
	os.Setenv("GITHUB_REPO", "members")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":3001" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":3001")
	}
	if cfg.DataBranch != "main" {
		t.Errorf("DataBranch = %q, want %q", cfg.DataBranch, "main")
	}
	if cfg.StateBranch != "otp-state" {
		t.Errorf("StateBranch = %q, want %q", cfg.StateBranch, "otp-state")
	}
	if cfg.MembersFile != "mitglieder_data.json" {
		t.Errorf("MembersFile = %q, want default", cfg.MembersFile)
	}
	if cfg.OTPStore != "memory" {
		t.Errorf("OTPStore = %q, want %q", cfg.OTPStore, "memory")
	}
	if cfg.OTPMaxAttempts != 3 {
		t.Errorf("OTPMaxAttempts = %d, want 3", cfg.OTPMaxAttempts)
	}
	if cfg.CodeTTL() != 10*time.Minute {
		t.Errorf("CodeTTL = %v, want 10m", cfg.CodeTTL())
	}
	if cfg.BearerTTL() != time.Hour {
		t.Errorf("BearerTTL = %v, want 1h", cfg.BearerTTL())
	}
	if cfg.RemoteTimeout() != 10*time.Second {
		t.Errorf("RemoteTimeout = %v, want 10s", cfg.RemoteTimeout())
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setRequired(t)
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("OTP_STORE", "github")
	os.Setenv("OTP_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.OTPStore != "github" {
		t.Errorf("OTPStore = %q, want %q", cfg.OTPStore, "github")
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Errorf("OTPMaxAttempts = %d, want 5", cfg.OTPMaxAttempts)
	}
}

func TestLoad_TokenSecretRequired(t *testing.T) {
	os.Clearenv()
	os.Setenv("GITHUB_TOKEN", "gh-token")
	os.Setenv("GITHUB_OWNER", "acme")
	os.Setenv("GITHUB_REPO", "members")

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail without TOKEN_SECRET")
	}
}

func TestLoad_GitHubVarsRequired(t *testing.T) {
	os.Clearenv()
	os.Setenv("TOKEN_SECRET", "test-secret")
	os.Setenv("GITHUB_TOKEN", "gh-token")
	// GITHUB_OWNER and GITHUB_REPO missing

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail with partial GitHub config")
	}
}

func TestLoad_RejectsUnknownStore(t *testing.T) {
	setRequired(t)
	os.Setenv("OTP_STORE", "redis")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject unknown OTP_STORE")
	}
}

func TestLoad_ProductionRequiresMailKey(t *testing.T) {
	setRequired(t)
	os.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail in production without RESEND_API_KEY")
	}

	os.Setenv("RESEND_API_KEY", "re_123")
	if _, err := Load(); err != nil {
		t.Fatalf("Load with mail key: %v", err)
	}
}

func TestDurations_InvalidFallBack(t *testing.T) {
	setRequired(t)
	os.Setenv("OTP_TTL", "invalid")
	os.Setenv("TOKEN_TTL", "-1h")
	os.Setenv("STORE_TIMEOUT", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CodeTTL() != 10*time.Minute {
		t.Errorf("CodeTTL = %v, want 10m fallback", cfg.CodeTTL())
	}
	if cfg.BearerTTL() != time.Hour {
		t.Errorf("BearerTTL = %v, want 1h fallback", cfg.BearerTTL())
	}
	if cfg.RemoteTimeout() != 10*time.Second {
		t.Errorf("RemoteTimeout = %v, want 10s fallback", cfg.RemoteTimeout())
	}
}

func TestDurations_Valid(t *testing.T) {
	setRequired(t)
	os.Setenv("OTP_TTL", "5m")
	os.Setenv("TOKEN_TTL", "2h")
	os.Setenv("STORE_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CodeTTL() != 5*time.Minute {
		t.Errorf("CodeTTL = %v, want 5m", cfg.CodeTTL())
	}
	if cfg.BearerTTL() != 2*time.Hour {
		t.Errorf("BearerTTL = %v, want 2h", cfg.BearerTTL())
	}
	if cfg.RemoteTimeout() != 3*time.Second {
		t.Errorf("RemoteTimeout = %v, want 3s", cfg.RemoteTimeout())
	}
}
