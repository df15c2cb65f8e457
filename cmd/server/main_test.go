package main

import (
	"context"
	"testing"
	"time"

	"retailpos/internal/config"
	"retailpos/internal/domain"
	"retailpos/internal/httpapi"
	"retailpos/internal/store/memory"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, BootstrapAdminEmail: "root@example.com"}); err == nil {
		t.Fatalf("expected bootstrap email without password to be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, BootstrapAdminEmail: "root@example.com", BootstrapAdminPass: "short"}); err == nil {
		t.Fatalf("expected short bootstrap password to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, BootstrapAdminEmail: "root@example.com", BootstrapAdminPass: "correct-horse-battery"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestBootstrapAdminOnlyOnEmptyUserTable(t *testing.T) {
	cfg := config.Config{BootstrapAdminEmail: "root@example.com", BootstrapAdminPass: "correct-horse-battery"}

	empty := memory.New()
	auth := httpapi.NewAuthManager(strongSecret, time.Hour, empty)
	if err := bootstrapAdmin(context.Background(), auth, cfg); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: "root@example.com", Password: "correct-horse-battery"})
	if err != nil || resp.Role != domain.RoleAdmin {
		t.Fatalf("expected bootstrap admin to log in, got %+v %v", resp, err)
	}

	seeded := memory.NewSeeded()
	auth = httpapi.NewAuthManager(strongSecret, time.Hour, seeded)
	if err := bootstrapAdmin(context.Background(), auth, cfg); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if _, err := seeded.GetUserByEmail(context.Background(), "root@example.com"); err == nil {
		t.Fatalf("expected no bootstrap admin when users already exist")
	}
}
