package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultInitDataTTL bounds the age of auth_date. initData is regenerated on
// every mini-app launch.
const DefaultInitDataTTL = 5 * time.Minute

// maxClockSkew tolerates auth_date slightly ahead of the server clock.
const maxClockSkew = time.Minute

// ValidateTelegramWebAppData checks the initData signature and freshness.
// https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app
func ValidateTelegramWebAppData(initData string, botToken string, maxAge time.Duration) (url.Values, error) {
	if maxAge <= 0 {
		maxAge = DefaultInitDataTTL
	}

	vals, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("invalid initData format: %w", err)
	}

	receivedHash := vals.Get("hash")
	if receivedHash == "" {
		return nil, fmt.Errorf("hash is missing from initData")
	}

	authDateStr := vals.Get("auth_date")
	if authDateStr == "" {
		return nil, fmt.Errorf("auth_date is missing from initData")
	}
	authDateUnix, err := strconv.ParseInt(authDateStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("auth_date is not a valid unix timestamp")
	}
	authDate := time.Unix(authDateUnix, 0)
	if age := time.Since(authDate); age > maxAge {
		return nil, fmt.Errorf("initData expired: auth_date is %s old (max %s)", age.Round(time.Second), maxAge)
	}
	if authDate.After(time.Now().Add(maxClockSkew)) {
		return nil, fmt.Errorf("auth_date is in the future")
	}

	secretKey := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	expected := hmacSHA256(secretKey, []byte(dataCheckString(vals)))
	got, err := hex.DecodeString(receivedHash)
	if err != nil || !hmac.Equal(got, expected) {
		return nil, fmt.Errorf("invalid hash: data integrity check failed")
	}

	return vals, nil
}

// dataCheckString joins every field except hash as sorted key=value lines.
func dataCheckString(vals url.Values) string {
	var pairs []string
	for key, values := range vals {
		if key == "hash" {
			continue
		}
		for _, v := range values {
			pairs = append(pairs, key+"="+v)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\n")
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// WebAppUser is the user object embedded in initData.
type WebAppUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
}

// ParseWebAppUser reads the user and the start_param (a referral code when the
// mini-app was opened from a referral link) out of validated initData.
func ParseWebAppUser(vals url.Values) (*WebAppUser, string, error) {
	raw := vals.Get("user")
	if raw == "" {
		return nil, "", fmt.Errorf("user data missing from init_data")
	}
	var u WebAppUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, "", fmt.Errorf("invalid user data: %w", err)
	}
	if u.ID == 0 {
		return nil, "", fmt.Errorf("user id missing from init_data")
	}
	return &u, strings.TrimSpace(vals.Get("start_param")), nil
}
