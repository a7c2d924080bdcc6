package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadRateDefaults(t *testing.T) {
	t.Setenv("TAX_RATE", "")
	t.Setenv("LOYALTY_POINT_VALUE_CENTS", "")
	t.Setenv("LOYALTY_EARN_PER_DOLLAR", "")

	cfg := Load()
	if cfg.TaxRate != "0.15" {
		t.Fatalf("expected default tax rate 0.15, got %q", cfg.TaxRate)
	}
	if cfg.LoyaltyPointValueCents != 1 {
		t.Fatalf("expected point value 1, got %d", cfg.LoyaltyPointValueCents)
	}
	if cfg.LoyaltyEarnPerDollar != 10 {
		t.Fatalf("expected earn rate 10, got %d", cfg.LoyaltyEarnPerDollar)
	}
}

func TestLoadRejectsMalformedNumericEnv(t *testing.T) {
	t.Setenv("LOYALTY_POINT_VALUE_CENTS", "-5")
	t.Setenv("LOYALTY_EARN_PER_DOLLAR", "abc")
	t.Setenv("BALANCE_CACHE_TTL_SECONDS", "0")

	cfg := Load()
	if cfg.LoyaltyPointValueCents != 1 {
		t.Fatalf("negative point value should fall back to 1, got %d", cfg.LoyaltyPointValueCents)
	}
	if cfg.LoyaltyEarnPerDollar != 10 {
		t.Fatalf("malformed earn rate should fall back to 10, got %d", cfg.LoyaltyEarnPerDollar)
	}
	if cfg.BalanceCacheTTLSeconds != 60 {
		t.Fatalf("zero TTL should fall back to 60, got %d", cfg.BalanceCacheTTLSeconds)
	}
}
