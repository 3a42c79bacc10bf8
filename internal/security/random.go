package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"regexp"
)

const (
	InviteCodeLength   = 8
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	nonceBytes         = 32
)

var inviteCodePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

func NewInviteCode() (string, error) {
	max := big.NewInt(int64(len(inviteCodeAlphabet)))
	out := make([]byte, InviteCodeLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		out[i] = inviteCodeAlphabet[n.Int64()]
	}
	return string(out), nil
}

func IsValidInviteCode(code string) bool {
	return inviteCodePattern.MatchString(code)
}

func NewApproveNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate approve nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
