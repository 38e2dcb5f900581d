package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestResolveNotConfigured(t *testing.T) {
	ctx := context.Background()
	store := newMemCredentials()
	svc := NewCredentialService(store, testVault(t), nil)
	userID := uuid.New()

	if _, err := svc.Resolve(ctx, userID, "steam"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("absent: expected ErrNotConfigured, got %v", err)
	}

	if _, err := svc.save(ctx, userID, CredentialInput{Service: "steam", Type: "openid", Data: map[string]any{"steam_id": "1"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	store.rows[credKey(userID, "steam")].EncryptedData = "bm90IGFuIGVudmVsb3Bl"
	if _, err := svc.Resolve(ctx, userID, "steam"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("corrupt: expected ErrNotConfigured, got %v", err)
	}

	if _, err := svc.save(ctx, userID, CredentialInput{Service: "steam", Type: "openid", Data: map[string]any{"steam_id": "1"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	store.rows[credKey(userID, "steam")].IsActive = false
	if _, err := svc.Resolve(ctx, userID, "steam"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("inactive: expected ErrNotConfigured, got %v", err)
	}
}

func TestResolveWithOtherKeyIsNotConfigured(t *testing.T) {
	ctx := context.Background()
	store := newMemCredentials()
	userID := uuid.New()

	writer := NewCredentialService(store, testVault(t), nil)
	if _, err := writer.Save(ctx, userID, CredentialInput{Service: "psn", Type: "oauth", Data: map[string]any{"access_token": "x"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	other := vaultWithKeyByte(t, 7)
	reader := NewCredentialService(store, other, nil)
	if _, err := reader.Resolve(ctx, userID, "psn"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured under a different key, got %v", err)
	}
}

func TestSaveAndResolve(t *testing.T) {
	ctx := context.Background()
	store := newMemCredentials()
	svc := NewCredentialService(store, testVault(t), nil)
	userID := uuid.New()
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	row, err := svc.Save(ctx, userID, CredentialInput{
		Service:   " PSN ",
		Type:      "oauth",
		Data:      map[string]any{"account_id": "acct-1", "access_token": "secret-token", "region": 7},
		Metadata:  map[string]any{"online_id": "player"},
		ExpiresAt: &expires,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if row.ServiceName != "psn" || !row.IsActive || !row.IsValid {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.EncryptedData == "" || strings.Contains(row.EncryptedData, "secret-token") {
		t.Fatal("stored data must be an envelope")
	}

	cred, err := svc.Resolve(ctx, userID, "psn")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred.AccountID() != "acct-1" || cred.AccessToken() != "secret-token" {
		t.Errorf("unexpected payload accessors: %q %q", cred.AccountID(), cred.AccessToken())
	}
	if cred.String("region") != "7" || cred.String("missing") != "" {
		t.Errorf("String() mishandled non-string fields")
	}
	if cred.Expired(expires.Add(-time.Second)) || !cred.Expired(expires) {
		t.Error("Expired boundary is wrong")
	}

	if _, err := svc.Resolve(ctx, uuid.New(), "psn"); !errors.Is(err, ErrNotConfigured) {
		t.Error("credentials must not resolve for another user")
	}
}

func TestSaveValidation(t *testing.T) {
	svc := NewCredentialService(newMemCredentials(), testVault(t), nil)
	tests := []CredentialInput{
		{Type: "oauth", Data: map[string]any{"a": "b"}},
		{Service: "psn", Data: map[string]any{"a": "b"}},
		{Service: "psn", Type: "oauth"},
	}
	for _, in := range tests {
		if _, err := svc.Save(context.Background(), uuid.New(), in); !errors.Is(err, ErrValidation) {
			t.Errorf("Save(%+v): expected ErrValidation, got %v", in, err)
		}
	}
}

func TestDeleteCredential(t *testing.T) {
	ctx := context.Background()
	svc := NewCredentialService(newMemCredentials(), testVault(t), nil)
	userID := uuid.New()

	if err := svc.Delete(ctx, userID, "steam"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.save(ctx, userID, CredentialInput{Service: "steam", Type: "openid", Data: map[string]any{"steam_id": "1"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := svc.Delete(ctx, userID, "STEAM"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, _ := svc.List(ctx, userID)
	if len(list) != 0 {
		t.Fatalf("expected no credentials, got %d", len(list))
	}
}

func TestSaveRejectsLinkedOnlyServices(t *testing.T) {
	store := newMemCredentials()
	svc := NewCredentialService(store, testVault(t), nil)

	_, err := svc.Save(context.Background(), uuid.New(), CredentialInput{
		Service: " Steam ", Type: "x", Data: map[string]any{"steam_id": "76561198000000042"},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(store.rows) != 0 {
		t.Fatalf("expected no credential rows, got %d", len(store.rows))
	}
}

func TestResolveKeepsLargeNumericIDs(t *testing.T) {
	ctx := context.Background()
	svc := NewCredentialService(newMemCredentials(), testVault(t), nil)
	userID := uuid.New()

	if _, err := svc.Save(ctx, userID, CredentialInput{
		Service: "psn", Type: "oauth",
		Data: map[string]any{"account_id": int64(9007199254740993), "access_token": "tok"},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cred, err := svc.Resolve(ctx, userID, "psn")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := cred.AccountID(); got != "9007199254740993" {
		t.Errorf("AccountID() = %q, want 9007199254740993", got)
	}
	if cred.String("access_token") != "tok" {
		t.Errorf("string field mishandled")
	}
}
