//go:build !integration

package api_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"telegram-tarot-miniapp/internal/infra/api"
)

const (
	testBotToken  = "123456:ABC-DEF-test-token"
	testJWTSecret = "0123456789abcdef0123456789abcdef"
)

// signInitData builds a WebApp initData query string with a valid hash,
// the way Telegram clients do.
func signInitData(botToken string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}
	checkString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secretMac.Sum(nil))
	mac.Write([]byte(checkString))

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func TestVerifyInitData(t *testing.T) {
	auth := api.NewAuthManager(testBotToken, testJWTSecret, time.Hour)

	fresh := func() map[string]string {
		return map[string]string{
			"auth_date": fmt.Sprintf("%d", time.Now().Unix()),
			"query_id":  "AAH1",
			"user":      `{"id":4242,"username":"querent","first_name":"Q"}`,
		}
	}

	t.Run("valid signature yields the embedded user", func(t *testing.T) {
		u, err := auth.VerifyInitData(signInitData(testBotToken, fresh()))
		if err != nil {
			t.Fatalf("VerifyInitData: %v", err)
		}
		if u.ID != 4242 || u.Username != "querent" {
			t.Errorf("user = %+v", u)
		}
	})

	t.Run("wrong bot token fails verification", func(t *testing.T) {
		if _, err := auth.VerifyInitData(signInitData("999:other-token", fresh())); err == nil {
			t.Fatal("foreign signature should be rejected")
		}
	})

	t.Run("tampered field fails verification", func(t *testing.T) {
		data := signInitData(testBotToken, fresh())
		tampered := strings.Replace(data, "4242", "1337", 1)
		if _, err := auth.VerifyInitData(tampered); err == nil {
			t.Fatal("tampered payload should be rejected")
		}
	})

	t.Run("stale auth_date is rejected", func(t *testing.T) {
		fields := fresh()
		fields["auth_date"] = fmt.Sprintf("%d", time.Now().Add(-48*time.Hour).Unix())
		if _, err := auth.VerifyInitData(signInitData(testBotToken, fields)); err == nil {
			t.Fatal("stale init data should be rejected")
		}
	})

	t.Run("missing hash is rejected", func(t *testing.T) {
		if _, err := auth.VerifyInitData("user=%7B%22id%22%3A1%7D"); err == nil {
			t.Fatal("payload without hash should be rejected")
		}
	})
}

func TestSessionTokens(t *testing.T) {
	auth := api.NewAuthManager(testBotToken, testJWTSecret, time.Hour)

	token, err := auth.Mint(&api.TelegramUser{ID: 4242, Username: "querent"})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	t.Run("minted token round-trips", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		claims, err := auth.ParseFromRequest(req)
		if err != nil {
			t.Fatalf("ParseFromRequest: %v", err)
		}
		if claims.TelegramID != 4242 {
			t.Errorf("telegram id = %d, want 4242", claims.TelegramID)
		}
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if _, err := auth.ParseFromRequest(req); err == nil {
			t.Fatal("request without token should be rejected")
		}
	})

	t.Run("token signed with another secret is rejected", func(t *testing.T) {
		other := api.NewAuthManager(testBotToken, "ffffffffffffffffffffffffffffffff", time.Hour)
		foreign, err := other.Mint(&api.TelegramUser{ID: 4242})
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+foreign)
		if _, err := auth.ParseFromRequest(req); err == nil {
			t.Fatal("foreign token should be rejected")
		}
	})
}
