package config

import "testing"

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() failed to validate: %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
listen:
  address: "0.0.0.0:1081"
auth:
  mode: password
  users:
    - username: alice
      password: s3cret
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen.Address != "0.0.0.0:1081" {
		t.Errorf("Listen.Address = %q, want 0.0.0.0:1081", cfg.Listen.Address)
	}
	if cfg.Auth.Mode != "password" || len(cfg.Auth.Users) != 1 {
		t.Fatalf("got %+v", cfg.Auth)
	}
	if cfg.UDP.MaxDatagramSize != 1472 {
		t.Errorf("expected UDP defaults to survive partial override, got %+v", cfg.UDP)
	}
}

func TestParseExpandsEnvVars(t *testing.T) {
	t.Setenv("SOCKS5D_PASSWORD", "fromenv")
	data := []byte(`
auth:
  mode: password
  users:
    - username: bob
      password: ${SOCKS5D_PASSWORD}
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Auth.Users[0].Password != "fromenv" {
		t.Errorf("Password = %q, want fromenv", cfg.Auth.Users[0].Password)
	}
}

func TestValidateRejectsBadListenAddress(t *testing.T) {
	cfg := Default()
	cfg.Listen.Address = "not-a-host-port"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an invalid listen address")
	}
}

func TestValidatePasswordModeRequiresUsers(t *testing.T) {
	cfg := Default()
	cfg.Auth.Mode = "password"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error when auth.mode is password with no users")
	}
}

func TestValidateRejectsUnknownAuthMode(t *testing.T) {
	cfg := Default()
	cfg.Auth.Mode = "kerberos"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unsupported auth mode")
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unsupported log level")
	}
}
