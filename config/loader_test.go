package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Serve(t *testing.T) {
	t.Setenv("REACTNET_PORT", "9090")
	t.Setenv("REACTNET_BACKLOG", "32")
	t.Setenv("REACTNET_BUFFER_SIZE", "4096")
	t.Setenv("REACTNET_HANDLER", "EXEC")
	t.Setenv("REACTNET_SCRIPT", "wc -c")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.Port != 9090 || cfg.Backlog != 32 || cfg.TransientSize != 4096 {
		t.Errorf("got port=%d backlog=%d size=%d", cfg.Port, cfg.Backlog, cfg.TransientSize)
	}
	if cfg.Handler != HandlerExec || cfg.Script != "wc -c" {
		t.Errorf("handler=%q script=%q", cfg.Handler, cfg.Script)
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "TRUE", "Yes"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("REACTNET_NO_CORS", v)
			t.Setenv("REACTNET_NO_CERT_CHAIN", v)
			cfg := Default()
			LoadFromEnv(cfg)
			if !cfg.DisableCORS {
				t.Error("DisableCORS should be true")
			}
			if !cfg.NoCertChain {
				t.Error("NoCertChain should be true")
			}
		})
	}
}

func TestLoadFromEnv_Timeouts(t *testing.T) {
	t.Setenv("REACTNET_CONNECT_TIMEOUT", "5")
	t.Setenv("REACTNET_HANDSHAKE_TIMEOUT", "20")
	t.Setenv("REACTNET_IDLE_TIMEOUT", "60")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
	if cfg.HandshakeTimeout != 20*time.Second {
		t.Errorf("HandshakeTimeout = %v", cfg.HandshakeTimeout)
	}
	if cfg.IdleTimeout != time.Minute {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}
}

func TestLoadFromEnv_NoOverrideWhenEmpty(t *testing.T) {
	cfg := Default()
	cfg.Port = 1234
	LoadFromEnv(cfg)
	if cfg.Port != 1234 {
		t.Errorf("Port changed to %d with no env set", cfg.Port)
	}
}

func TestLoadFromEnv_InvalidIntIgnored(t *testing.T) {
	t.Setenv("REACTNET_PORT", "not-a-number")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d", cfg.Port, DefaultPort)
	}
}

func TestDebugGates(t *testing.T) {
	t.Setenv(EnvDataDump, "")
	if DataDumpEnabled() {
		t.Error("dump gate should be off when unset")
	}
	t.Setenv(EnvDataDump, "1")
	if !DataDumpEnabled() {
		t.Error("dump gate should be on")
	}
	t.Setenv(EnvKeyLogFile, "/tmp/keys.log")
	if KeyLogPath() != "/tmp/keys.log" {
		t.Errorf("KeyLogPath = %q", KeyLogPath())
	}
}
