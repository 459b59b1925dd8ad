package ba

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
)

// deriveSessionKey folds the configured SESSION_ENCRYPTION_KEY secret down to
// a fixed 32-byte AES-256 key regardless of its length. An unset secret still
// derives a (fixed, well-known) key rather than skipping encryption, so
// development without the env var set exercises the same code path as
// production; a real deployment must set SESSION_ENCRYPTION_KEY.
func deriveSessionKey(secret string) [32]byte {
	if secret == "" {
		log.Warn().Msg("SESSION_ENCRYPTION_KEY not set, session credentials at rest use a well-known dev key")
	}
	return sha256.Sum256([]byte(secret))
}

// seal AES-256-GCM encrypts plaintext under key, hex-encoding nonce+ciphertext
// together so the result round-trips through the same JSON blob hotstore
// already uses for a Session (the nonce-prefixed-ciphertext shape mirrors
// go-ethereum's signer/storage AES-GCM keystore entries).
func seal(key [32]byte, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// open reverses seal.
func open(key [32]byte, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ba: session ciphertext shorter than nonce")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// encryptCredentials returns a copy of creds with every secret field (API
// key, client id, password, TOTP seed, tokens) sealed under key — the form
// persisted to hotstore (spec §3: credentials encrypted at rest).
func encryptCredentials(key [32]byte, creds domain.BrokerCredentials) (domain.BrokerCredentials, error) {
	out := creds
	var err error
	for _, f := range []struct {
		src string
		dst *string
	}{
		{creds.APIKey, &out.APIKey},
		{creds.ClientID, &out.ClientID},
		{creds.Password, &out.Password},
		{creds.TOTPSeed, &out.TOTPSeed},
		{creds.AccessToken, &out.AccessToken},
		{creds.RefreshToken, &out.RefreshToken},
	} {
		if *f.dst, err = seal(key, f.src); err != nil {
			return domain.BrokerCredentials{}, err
		}
	}
	return out, nil
}

// decryptCredentials reverses encryptCredentials.
func decryptCredentials(key [32]byte, creds domain.BrokerCredentials) (domain.BrokerCredentials, error) {
	out := creds
	var err error
	for _, f := range []struct {
		src string
		dst *string
	}{
		{creds.APIKey, &out.APIKey},
		{creds.ClientID, &out.ClientID},
		{creds.Password, &out.Password},
		{creds.TOTPSeed, &out.TOTPSeed},
		{creds.AccessToken, &out.AccessToken},
		{creds.RefreshToken, &out.RefreshToken},
	} {
		if *f.dst, err = open(key, f.src); err != nil {
			return domain.BrokerCredentials{}, err
		}
	}
	return out, nil
}
