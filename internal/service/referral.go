package service

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// ReferralCode encodes a user id for use as a /start payload.
func ReferralCode(userID int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(userID, 10)))
}

// ParseReferralCode decodes a /start payload. Padded codes are accepted.
func ParseReferralCode(code string) (int64, bool) {
	code = strings.TrimRight(strings.TrimSpace(code), "=")
	if code == "" {
		return 0, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(code)
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
