package store_test

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wtsdeal/broadcast-service/internal/accounts"
	"github.com/wtsdeal/broadcast-service/internal/store"
)

func openStore(t *testing.T) *store.UserStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "users.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *store.UserStore, user accounts.UserData) {
	t.Helper()
	if err := s.UpsertUser(context.Background(), user); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
}

func TestFetchUserRoundTrip(t *testing.T) {
	s := openStore(t)
	seedUser(t, s, accounts.UserData{
		UserID:         "u-1",
		APIToken:       "tok",
		IsActive:       true,
		Coins:          10,
		MarketingCoins: 20,
		PhoneNumberID:  "pn-1",
		WABAID:         "waba-1",
		AppToken:       "app-tok",
	})

	user, err := s.FetchUser(context.Background(), "u-1", "tok")
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}
	if user.PhoneNumberID != "pn-1" || user.AppToken != "app-tok" || user.MarketingCoins != 20 {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestFetchUserUnknownCredentials(t *testing.T) {
	s := openStore(t)
	seedUser(t, s, accounts.UserData{UserID: "u-1", APIToken: "tok", IsActive: true})

	_, err := s.FetchUser(context.Background(), "u-1", "wrong")
	rej, ok := accounts.AsRejection(err)
	if !ok || rej.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 rejection, got %v", err)
	}
}

func TestFetchUserInactive(t *testing.T) {
	s := openStore(t)
	seedUser(t, s, accounts.UserData{UserID: "u-1", APIToken: "tok", IsActive: false})

	_, err := s.FetchUser(context.Background(), "u-1", "tok")
	rej, ok := accounts.AsRejection(err)
	if !ok || rej.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 rejection, got %v", err)
	}
}

func TestDeductCoins(t *testing.T) {
	s := openStore(t)
	seedUser(t, s, accounts.UserData{UserID: "u-1", APIToken: "tok", IsActive: true, Coins: 10})

	if err := s.DeductCoins(context.Background(), "u-1", 7); err != nil {
		t.Fatalf("DeductCoins: %v", err)
	}
	user, err := s.FetchUser(context.Background(), "u-1", "tok")
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}
	if user.Coins != 3 {
		t.Fatalf("coins = %d, want 3", user.Coins)
	}
}

func TestDeductCoinsInsufficientBalance(t *testing.T) {
	s := openStore(t)
	seedUser(t, s, accounts.UserData{UserID: "u-1", APIToken: "tok", IsActive: true, Coins: 2})

	err := s.DeductCoins(context.Background(), "u-1", 3)
	rej, ok := accounts.AsRejection(err)
	if !ok || rej.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402 rejection, got %v", err)
	}

	user, ferr := s.FetchUser(context.Background(), "u-1", "tok")
	if ferr != nil {
		t.Fatalf("FetchUser: %v", ferr)
	}
	if user.Coins != 2 {
		t.Fatalf("balance must be untouched after refusal, got %d", user.Coins)
	}
}

func TestUpdateBalanceReportMintsReportID(t *testing.T) {
	s := openStore(t)
	seedUser(t, s, accounts.UserData{UserID: "u-1", APIToken: "tok", IsActive: true, Coins: 5})

	reportID, err := s.UpdateBalanceReport(context.Background(), accounts.BalanceReport{
		UserID: "u-1",
		Coins:  5,
	})
	if err != nil {
		t.Fatalf("UpdateBalanceReport: %v", err)
	}
	if reportID == "" {
		t.Fatal("expected a non-empty report id")
	}

	user, err := s.FetchUser(context.Background(), "u-1", "tok")
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}
	if user.Coins != 0 {
		t.Fatalf("reservation should deduct coins, got %d", user.Coins)
	}
}

func TestUpsertUserOverwrites(t *testing.T) {
	s := openStore(t)
	seedUser(t, s, accounts.UserData{UserID: "u-1", APIToken: "tok", IsActive: true, Coins: 1})
	seedUser(t, s, accounts.UserData{UserID: "u-1", APIToken: "tok2", IsActive: true, Coins: 9})

	user, err := s.FetchUser(context.Background(), "u-1", "tok2")
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}
	if user.Coins != 9 {
		t.Fatalf("coins = %d, want 9", user.Coins)
	}
}
