package migrate

import (
	"errors"
	"os"
	"testing"

	"devicebound-auth/backend/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		if err := Run(dsn, "up"); !errors.Is(err, db.ErrEmptyDSN) {
			t.Errorf("Run(%q) = %v, want ErrEmptyDSN", dsn, err)
		}
	}
	if _, _, err := Version(""); !errors.Is(err, db.ErrEmptyDSN) {
		t.Errorf("Version(\"\") = %v, want ErrEmptyDSN", err)
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "invalid", "UP", "Down", "both"} {
		t.Run(direction, func(t *testing.T) {
			if err := Run("postgres://localhost/test", direction); err == nil {
				t.Errorf("Run with direction %q should return error", direction)
			}
		})
	}
}

func TestRun_Unreachable(t *testing.T) {
	testCases := []struct {
		name string
		dsn  string
	}{
		{"invalid format", "invalid-dsn"},
		{"missing driver", "://localhost/test"},
		{"unreachable host", "postgres://invalid-host-that-does-not-exist:5432/test?connect_timeout=1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Run(tc.dsn, "up")
			if err == nil {
				t.Fatalf("Run with %q should return error", tc.dsn)
			}
			if errors.Is(err, ErrNoChange) {
				t.Error("Run should never surface ErrNoChange")
			}
		})
	}
}

func TestRun_UpDown(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := Run(dsn, "up"); err != nil {
		t.Fatalf("Run up: %v", err)
	}
	if err := Run(dsn, "up"); err != nil {
		t.Fatalf("Run up twice should be a no-op: %v", err)
	}
	v, dirty, err := Version(dsn)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v < 1 || dirty {
		t.Errorf("Version = %d dirty=%v, want >=1 clean", v, dirty)
	}
}
