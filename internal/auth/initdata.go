package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingInitData = errors.New("missing init data")
	ErrInvalidInitData = errors.New("invalid init data signature")
	ErrExpiredInitData = errors.New("init data expired")
)

// TelegramUser is the identity embedded in validated init data.
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Authenticator validates Telegram Mini App init data. Validation is pure:
// it never touches storage.
type Authenticator struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// New derives the signing secret from the bot token per the Telegram WebApp
// scheme: secret = HMAC-SHA256(key="WebAppData", msg=botToken). maxAge <= 0
// disables the auth_date freshness check.
func New(botToken string, maxAge time.Duration) *Authenticator {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return &Authenticator{
		secret: mac.Sum(nil),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Validate checks the HMAC signature of raw init data and returns the
// embedded user. The signature comparison is constant time.
func (a *Authenticator) Validate(initData string) (*TelegramUser, error) {
	if strings.TrimSpace(initData) == "" {
		return nil, ErrMissingInitData
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInitData, err)
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return nil, fmt.Errorf("%w: hash missing", ErrInvalidInitData)
	}
	received, err := hex.DecodeString(receivedHash)
	if err != nil {
		return nil, fmt.Errorf("%w: hash not hex", ErrInvalidInitData)
	}

	if a.maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad auth_date", ErrInvalidInitData)
		}
		if a.now().UTC().Sub(time.Unix(authDate, 0)) > a.maxAge {
			return nil, ErrExpiredInitData
		}
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+values.Get(key))
	}
	checkString := strings.Join(pairs, "\n")

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(checkString))
	if !hmac.Equal(mac.Sum(nil), received) {
		return nil, ErrInvalidInitData
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return &TelegramUser{}, nil
	}
	var user TelegramUser
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, fmt.Errorf("%w: bad user payload", ErrInvalidInitData)
	}
	return &user, nil
}
