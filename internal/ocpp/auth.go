package ocpp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"time"

	"go.uber.org/zap"
)

const authAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// genSHA256 hashes an arbitrary string to its lowercase hex digest,
// mirroring the original's gen_sha_256 utility.
func genSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// checkBasicAuth constant-time-compares the sha256 of an incoming
// "Basic <base64>" header value against the charger's stored auth_sha.
func checkBasicAuth(header, storedSHA string) bool {
	if storedSHA == "" {
		return false
	}
	got := genSHA256(header)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedSHA)) == 1
}

func genPassword(n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(authAlphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = authAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

// provisionAuth runs once per session for chargers with no stored
// credential: after HTTPAuthDelay it issues a random 16-char password via
// ChangeConfiguration(AuthorizationKey) and stores its sha, per spec §4.2.
func (s *Session) provisionAuth(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.HTTPAuthDelay):
	}

	password, err := genPassword(16)
	if err != nil {
		s.logger.Error("failed to generate authorization key", zap.Error(err))
		return
	}

	var confirmation struct {
		Status string `json:"status"`
	}
	req := map[string]string{"key": "AuthorizationKey", "value": password}
	if err := s.Call(ctx, "ChangeConfiguration", req, &confirmation); err != nil {
		s.logger.Warn("failed to provision AuthorizationKey", zap.Error(err))
		return
	}

	authString := s.chargerID + ":" + password
	authB64 := base64.StdEncoding.EncodeToString([]byte(authString))
	authSHA := genSHA256("Basic " + authB64)

	if charger, ok := s.store.Charger(s.chargerID); ok {
		charger.AuthSHA = authSHA
	}
	s.logger.Info("provisioned new AuthorizationKey")
}
