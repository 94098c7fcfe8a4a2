package bitmex

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// realtimeVerb is the signed request line of the websocket handshake.
const realtimeVerb = "GET/realtime"

// Signer produces BitMEX API-key authentication headers.
// Keys are stored as []byte to allow memory wiping.
type Signer struct {
	apiKey    []byte
	apiSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewSigner creates a signer whose signatures expire after ttl.
func NewSigner(apiKey, apiSecret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Signer{
		apiKey:    []byte(apiKey),
		apiSecret: []byte(apiSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Wipe clears the keys from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	wipe(s.apiKey)
	wipe(s.apiSecret)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Header returns api-expires, api-key and api-signature for the realtime endpoint.
func (s *Signer) Header() http.Header {
	expires := strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)

	h := make(http.Header)
	h.Set("api-expires", expires)
	h.Set("api-key", string(s.apiKey))
	h.Set("api-signature", s.sign(realtimeVerb+expires))
	return h
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.apiSecret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
