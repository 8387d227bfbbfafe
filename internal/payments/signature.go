package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// parseSignatureHeader splits a "ts=<epoch>,v1=<hex>" header into its
// components. The v1 component is mandatory.
func parseSignatureHeader(header string) (ts, v1 string, err error) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if v1 == "" {
		return "", "", ErrInvalidSignature
	}
	return ts, v1, nil
}

// VerifySignature checks the webhook signature header against the
// shared secret. The signed manifest binds the request id, the header
// timestamp and the raw body, so none of them can be swapped after
// signing. Comparison is constant time.
func VerifySignature(secret, header, requestID string, body []byte) error {
	ts, v1, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	manifest := fmt.Sprintf("id:%s;ts=%s;payload=%s", requestID, ts, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(v1)) {
		return ErrInvalidSignature
	}
	return nil
}
