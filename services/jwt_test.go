package services

import (
	"context"
	"testing"
	"time"
)

func newTestJWT(secret string) *JWTService {
	return &JWTService{
		AccessTokenDuration: time.Hour,
		jwtSecretKey:        secret,
	}
}

func TestJWTVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		svc := newTestJWT("test-secret")

		token, err := svc.ToJWT(&Identity{
			SubjectID:     "subject-1",
			Email:         "user@example.com",
			EmailVerified: true,
		})
		if err != nil {
			t.Fatalf("ToJWT failed: %v", err)
		}

		identity, err := svc.Verify(ctx, token)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if identity.SubjectID != "subject-1" {
			t.Errorf("Expected subject-1, got %s", identity.SubjectID)
		}
		if identity.Email != "user@example.com" || !identity.EmailVerified {
			t.Error("Identity claims should survive the round trip")
		}
	})

	t.Run("WrongSecretRejected", func(t *testing.T) {
		token, err := newTestJWT("test-secret").ToJWT(&Identity{SubjectID: "subject-1"})
		if err != nil {
			t.Fatalf("ToJWT failed: %v", err)
		}

		if _, err := newTestJWT("other-secret").Verify(ctx, token); err == nil {
			t.Error("Token signed with another secret must not verify")
		}
	})

	t.Run("GarbageRejected", func(t *testing.T) {
		if _, err := newTestJWT("test-secret").Verify(ctx, "not-a-token"); err == nil {
			t.Error("Malformed token must not verify")
		}
	})

	t.Run("ExpiredRejected", func(t *testing.T) {
		svc := newTestJWT("test-secret")
		svc.AccessTokenDuration = -time.Minute

		token, err := svc.ToJWT(&Identity{SubjectID: "subject-1"})
		if err != nil {
			t.Fatalf("ToJWT failed: %v", err)
		}

		if _, err := svc.Verify(ctx, token); err == nil {
			t.Error("Expired token must not verify")
		}
	})
}

func TestExtractTokenFromHeader(t *testing.T) {
	svc := &JWTService{}

	token, err := svc.ExtractTokenFromHeader("Bearer abc.def.ghi")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if token != "abc.def.ghi" {
		t.Errorf("Unexpected token %q", token)
	}

	for _, header := range []string{"", "abc.def.ghi", "Basic dXNlcg=="} {
		if _, err := svc.ExtractTokenFromHeader(header); err == nil {
			t.Errorf("Expected rejection for header %q", header)
		}
	}
}
