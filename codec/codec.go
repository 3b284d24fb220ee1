// Package codec encrypts individual string fields with a key derived from one
// shared secret.
//
// Sealed values have the form ENC:base64(nonce|ciphertext|tag) and use
// AES-256-GCM with a fresh random nonce per value, so equal plaintexts never
// produce equal ciphertexts. Open never fails: a value that cannot be
// decrypted is returned unchanged, which lets plaintext rows and values in
// the older passphrase format (see Passphrase) be read through the same call.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
	"student-records-backend/log"
)

const (
	Prefix = "ENC:"

	NonceSize         = 12
	KeySize           = 32
	DefaultIterations = 210000
	DefaultSalt       = "student-records/field-codec"
)

var (
	ErrInvalidCiphertext = errors.New("codec: invalid ciphertext format")
	ErrDecryptionFailed  = errors.New("codec: decryption failed")
	ErrEmptySecret       = errors.New("codec: empty secret")
)

type Options struct {
	Salt       string
	Iterations int
	// Legacy enables Open/Decrypt of values in the passphrase format, keyed by
	// the same secret.
	Legacy bool
}

type Codec struct {
	aead     cipher.AEAD
	indexKey []byte
	legacy   Passphrase
}

func New(secret string, opts Options) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if opts.Salt == "" {
		opts.Salt = DefaultSalt
	}
	if opts.Iterations <= 0 {
		opts.Iterations = DefaultIterations
	}

	material := pbkdf2.Key([]byte(secret), []byte(opts.Salt), opts.Iterations, 2*KeySize, sha256.New)

	block, err := aes.NewCipher(material[:KeySize])
	if err != nil {
		return nil, fmt.Errorf("codec: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("codec: new gcm: %w", err)
	}

	c := &Codec{
		aead:     aead,
		indexKey: material[KeySize:],
	}
	if opts.Legacy {
		c.legacy = Passphrase(secret)
	}

	return c, nil
}

func (c *Codec) Seal(plain string) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("codec: nonce: %w", err)
	}

	out := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return Prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reports why a value could not be decrypted. Values that carry no
// known format are returned unchanged with a nil error.
func (c *Codec) Decrypt(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, Prefix):
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
		if err != nil {
			return "", ErrInvalidCiphertext
		}
		if len(data) < NonceSize+c.aead.Overhead() {
			return "", ErrInvalidCiphertext
		}

		plain, err := c.aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
		if err != nil {
			return "", ErrDecryptionFailed
		}
		return string(plain), nil
	case c.legacy != nil && IsPassphraseFormat(value):
		return c.legacy.Decrypt(value)
	default:
		return value, nil
	}
}

func (c *Codec) Open(value string) string {
	plain, err := c.Decrypt(value)
	if err != nil {
		log.Logger.Debug("field left undecrypted", zap.Error(err))
		return value
	}
	return plain
}

// Index is a deterministic keyed digest of an email address, used to look up
// and enforce uniqueness of records whose email is sealed.
func (c *Codec) Index(email string) string {
	mac := hmac.New(sha256.New, c.indexKey)
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(mac.Sum(nil))
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, Prefix)
}
