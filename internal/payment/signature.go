package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of orderID + "|" + paymentID under secret,
// the value the checkout widget hands back as razorpay_signature.
func Sign(secret, orderID, paymentID string) string {
	return hmacHex(secret, []byte(orderID+"|"+paymentID))
}

// VerifySignature reports whether signature is the valid checkout signature
// for orderID and paymentID. The comparison is constant-time.
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	return equalHex(Sign(secret, orderID, paymentID), signature)
}

// VerifyWebhook reports whether signature (the X-Razorpay-Signature header)
// matches the hex HMAC-SHA256 of the raw request body under secret.
func VerifyWebhook(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return equalHex(hmacHex(secret, body), signature)
}

func hmacHex(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

func equalHex(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(got))))
}
