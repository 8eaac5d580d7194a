package transport

import "testing"

func TestCheckBindAddrAllowsLoopback(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:8080", "localhost:8080", "[::1]:8080"} {
		if err := CheckBindAddr(addr, false); err != nil {
			t.Errorf("addr %s: unexpected error: %v", addr, err)
		}
	}
}

func TestCheckBindAddrRejectsNonLoopback(t *testing.T) {
	err := CheckBindAddr("0.0.0.0:8080", false)
	if err == nil {
		t.Fatal("expected error for non-loopback bind")
	}
}

func TestCheckBindAddrAllowsPublicOverride(t *testing.T) {
	if err := CheckBindAddr("0.0.0.0:8080", true); err != nil {
		t.Errorf("unexpected error with public=true: %v", err)
	}
}

func TestCheckAuthTokenMatches(t *testing.T) {
	if !CheckAuthToken("Bearer secret123", "secret123") {
		t.Error("expected matching token to pass")
	}
}

func TestCheckAuthTokenRejectsMismatch(t *testing.T) {
	if CheckAuthToken("Bearer wrong", "secret123") {
		t.Error("expected mismatched token to fail")
	}
}

func TestCheckAuthTokenRejectsMissingBearerPrefix(t *testing.T) {
	if CheckAuthToken("secret123", "secret123") {
		t.Error("expected missing Bearer prefix to fail")
	}
}

func TestCheckAuthTokenNoConfiguredTokenAllowsAll(t *testing.T) {
	if !CheckAuthToken("", "") {
		t.Error("expected empty configured token to allow unauthenticated access (loopback-only mode)")
	}
}
