package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// ComputeShopifyHMAC returns the base64 HMAC-SHA256 Shopify sends in
// X-Shopify-Hmac-Sha256.
func ComputeShopifyHMAC(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyShopifyHMAC compares in constant time.
func VerifyShopifyHMAC(body []byte, secret, header string) bool {
	if header == "" {
		return false
	}
	given, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}
