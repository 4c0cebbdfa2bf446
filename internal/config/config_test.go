package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8123" {
		t.Errorf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Faucet.Cooldown != 24*time.Hour || cfg.Faucet.Category != "faucet" {
		t.Errorf("faucet = %+v", cfg.Faucet)
	}
	if cfg.Faucet.PasswordMode() {
		t.Errorf("password mode must be off by default")
	}
	if len(cfg.Faucet.OriginHeaders) != 3 || cfg.Faucet.OriginHeaders[0] != "CF-Connecting-IP" {
		t.Errorf("origin headers = %v", cfg.Faucet.OriginHeaders)
	}
	if cfg.Payout.BaseAmount != 100000 || cfg.Payout.MaxShareBps != 100 {
		t.Errorf("payout = %+v", cfg.Payout)
	}
	if cfg.Wallet.SendTimeout != 30*time.Second || cfg.Wallet.Breaker.FailThreshold != 3 {
		t.Errorf("wallet = %+v", cfg.Wallet)
	}
	if cfg.Kafka.ReconcileTopic != "faucet.reconcile" {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte("faucet:\n  symbol: \"tLTC\"\n  cooldown: 90s\npayout:\n  base_amount: 5000\n")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("FAUCET_FAUCET_PASSWORD", "hunter22")
	t.Setenv("FAUCET_HTTP_ADDR", ":9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Faucet.Symbol != "tLTC" || cfg.Faucet.Cooldown != 90*time.Second || cfg.Payout.BaseAmount != 5000 {
		t.Errorf("file values not merged: %+v %+v", cfg.Faucet, cfg.Payout)
	}
	if cfg.Faucet.Name != "Testnet Faucet" {
		t.Errorf("defaults must survive a partial file, name = %q", cfg.Faucet.Name)
	}
	if !cfg.Faucet.PasswordMode() || cfg.HTTP.Addr != ":9000" {
		t.Errorf("env overrides not applied: password=%q addr=%q", cfg.Faucet.Password, cfg.HTTP.Addr)
	}
}
