// Package filelink builds gateway download links for Telegram files. Links
// handed to the main server point at the relay instead of the Bot API file
// endpoint, whose URL contains the bot token.
package filelink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// PathPrefix is the gateway route serving signed file links.
const PathPrefix = "/files/"

type Signer struct {
	base string
	key  []byte
}

// New returns nil when either the public base URL or the key is empty.
func New(publicBase, key string) *Signer {
	publicBase = strings.TrimRight(strings.TrimSpace(publicBase), "/")
	if publicBase == "" || key == "" {
		return nil
	}
	return &Signer{base: publicBase, key: []byte(key)}
}

func (s *Signer) URL(fileID string) string {
	return s.base + PathPrefix + url.PathEscape(fileID) + "?sig=" + s.sign(fileID)
}

func (s *Signer) Valid(fileID, sig string) bool {
	if fileID == "" || sig == "" {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(s.sign(fileID))
	return hmac.Equal(got, want)
}

func (s *Signer) sign(fileID string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte("telegram-file:" + fileID))
	return hex.EncodeToString(mac.Sum(nil))
}
