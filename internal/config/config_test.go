package config

import (
	"strings"
	"testing"
)

func TestLoad_WalletSeedWords(t *testing.T) {
	t.Run("space separated mnemonic becomes word slice", func(t *testing.T) {
		seed := strings.Repeat("abandon ", 23) + "about"
		t.Setenv("TON_WALLET_SEED", seed)

		cfg := Load()
		if len(cfg.TONWalletSeed) != 24 {
			t.Fatalf("seed words = %d, want 24", len(cfg.TONWalletSeed))
		}
		if cfg.TONWalletSeed[23] != "about" {
			t.Errorf("last word = %q, want %q", cfg.TONWalletSeed[23], "about")
		}
	})

	t.Run("extra whitespace is tolerated", func(t *testing.T) {
		t.Setenv("TON_WALLET_SEED", "  one \t two\n three  ")

		cfg := Load()
		if len(cfg.TONWalletSeed) != 3 {
			t.Fatalf("seed words = %d, want 3", len(cfg.TONWalletSeed))
		}
	})

	t.Run("unset seed stays empty", func(t *testing.T) {
		t.Setenv("TON_WALLET_SEED", "")

		cfg := Load()
		if len(cfg.TONWalletSeed) != 0 {
			t.Fatalf("seed words = %d, want 0", len(cfg.TONWalletSeed))
		}
	})
}

func TestMatchedProofDomain(t *testing.T) {
	cfg := &Config{
		TONProofAllowedDomains: []string{"app.example.com", "staging.example.com"},
	}

	t.Run("returns configured entry, not the input casing", func(t *testing.T) {
		got, ok := cfg.MatchedProofDomain("APP.Example.COM")
		if !ok {
			t.Fatal("domain not matched")
		}
		if got != "app.example.com" {
			t.Errorf("matched = %q, want the configured %q", got, "app.example.com")
		}
	})

	t.Run("unknown domain rejected", func(t *testing.T) {
		if _, ok := cfg.MatchedProofDomain("evil.example.com"); ok {
			t.Error("unexpected match for unknown domain")
		}
	})

	t.Run("single-domain fallback", func(t *testing.T) {
		single := &Config{ProofDomain: "app.example.com"}
		got, ok := single.MatchedProofDomain("app.example.com")
		if !ok || got != "app.example.com" {
			t.Errorf("got %q, %v", got, ok)
		}
	})

	t.Run("empty config matches nothing", func(t *testing.T) {
		empty := &Config{}
		if _, ok := empty.MatchedProofDomain(""); ok {
			t.Error("empty config must not match an empty domain")
		}
	})
}
