package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// initDataMaxAge bounds how old a Telegram initData payload may be.
const initDataMaxAge = 24 * time.Hour

var (
	ErrBadInitData  = errors.New("telegram init data verification failed")
	ErrStaleSession = errors.New("init data is too old")
)

type AuthManager struct {
	botToken string
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthManager(botToken, jwtSecret string, ttl time.Duration) *AuthManager {
	return &AuthManager{
		botToken: botToken,
		secret:   []byte(jwtSecret),
		ttl:      ttl,
		now:      time.Now,
	}
}

type SessionClaims struct {
	TelegramID int64  `json:"tgId"`
	Username   string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// TelegramUser is the user object embedded in WebApp init data.
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// VerifyInitData checks the WebApp signature: the hash field must equal
// HMAC-SHA256 of the sorted key=value lines under a secret derived from
// the bot token. Constant-time compare on the final digest.
func (a *AuthManager) VerifyInitData(initData string) (*TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, ErrBadInitData
	}
	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, ErrBadInitData
	}

	pairs := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		pairs = append(pairs, k+"="+values.Get(k))
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(a.botToken))
	mac := hmac.New(sha256.New, secretMac.Sum(nil))
	mac.Write([]byte(checkString))
	want := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(want), []byte(gotHash)) != 1 {
		return nil, ErrBadInitData
	}

	if authDate := values.Get("auth_date"); authDate != "" {
		ts, err := strconv.ParseInt(authDate, 10, 64)
		if err != nil || a.now().Sub(time.Unix(ts, 0)) > initDataMaxAge {
			return nil, ErrStaleSession
		}
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, ErrBadInitData
	}
	return &user, nil
}

func (a *AuthManager) Mint(u *TelegramUser) (string, error) {
	now := a.now()
	claims := SessionClaims{
		TelegramID: u.ID,
		Username:   u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   strconv.FormatInt(u.ID, 10),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*SessionClaims, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" || !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return nil, errors.New("missing token")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
