// Package payments confirms gateway payments and turns them into orders.
package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verifier checks gateway signatures: hex(HMAC-SHA256(secret, orderID|paymentID)).
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign computes the signature the gateway would send.
func (v *Verifier) Sign(gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. An unconfigured secret verifies nothing.
func (v *Verifier) Verify(gatewayOrderID, paymentID, signature string) bool {
	if len(v.secret) == 0 || signature == "" {
		return false
	}
	return hmac.Equal([]byte(v.Sign(gatewayOrderID, paymentID)), []byte(signature))
}
