package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"student-records-backend/log"
)

// Passphrase decrypts values in the OpenSSL "Salted__" passphrase format:
// base64("Salted__" | 8 byte salt | AES-256-CBC ciphertext), key and IV derived
// with EVP_BytesToKey over MD5. This is what browser clients produce with a
// plain passphrase, and what records written before the switch to sealed
// values contain. The format carries no integrity tag.
//
// An empty Passphrase decrypts nothing; Open returns its input.
type Passphrase []byte

const (
	saltedMagic  = "Salted__"
	saltedPrefix = "U2FsdGVkX1" // base64 of the magic's first bytes
	saltSize     = 8
)

func IsPassphraseFormat(value string) bool {
	return strings.HasPrefix(value, saltedPrefix)
}

func (p Passphrase) Decrypt(value string) (string, error) {
	if len(p) == 0 || !IsPassphraseFormat(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(data) < len(saltedMagic)+saltSize+aes.BlockSize || !bytes.HasPrefix(data, []byte(saltedMagic)) {
		return "", ErrInvalidCiphertext
	}

	salt := data[len(saltedMagic) : len(saltedMagic)+saltSize]
	body := data[len(saltedMagic)+saltSize:]
	if len(body)%aes.BlockSize != 0 {
		return "", ErrInvalidCiphertext
	}

	key, iv := bytesToKey(p, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	plain, ok := unpad(plain)
	if !ok || !utf8.Valid(plain) {
		return "", ErrDecryptionFailed
	}

	return string(plain), nil
}

func (p Passphrase) Open(value string) string {
	plain, err := p.Decrypt(value)
	if err != nil {
		log.Logger.Debug("passphrase value left undecrypted", zap.Error(err))
		return value
	}
	return plain
}

// bytesToKey is EVP_BytesToKey with MD5 and one iteration, producing a 32
// byte key followed by a 16 byte IV.
func bytesToKey(pass, salt []byte) (key, iv []byte) {
	var out, prev []byte
	for len(out) < KeySize+aes.BlockSize {
		h := md5.New()
		h.Write(prev)
		h.Write(pass)
		h.Write(salt)
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out[:KeySize], out[KeySize : KeySize+aes.BlockSize]
}

func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
