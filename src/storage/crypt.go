package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// Transform is a reversible byte transform wrapped around encoded records.
// Seal runs last on write, Open runs first on read.
type Transform interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// DefaultKey and DefaultIV obscure save files from casual editing. They
// offer no secrecy.
var (
	DefaultKey = []byte("1234567890123456")
	DefaultIV  = []byte("1234567890123456")
)

var errPadding = errors.New("invalid padding")

// AESTransform is AES-CBC with PKCS#7 padding under a fixed key and IV.
type AESTransform struct {
	block cipher.Block
	iv    []byte
}

func NewAESTransform(key, iv []byte) (*AESTransform, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	return &AESTransform{block: block, iv: bytes.Clone(iv)}, nil
}

func (t *AESTransform) Seal(plain []byte) ([]byte, error) {
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	buf := make([]byte, len(plain)+pad)
	copy(buf, plain)
	for i := len(plain); i < len(buf); i++ {
		buf[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(t.block, t.iv).CryptBlocks(buf, buf)
	return buf, nil
}

func (t *AESTransform) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 || len(sealed)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of %d", len(sealed), aes.BlockSize)
	}
	buf := make([]byte, len(sealed))
	cipher.NewCBCDecrypter(t.block, t.iv).CryptBlocks(buf, sealed)

	pad := int(buf[len(buf)-1])
	if pad == 0 || pad > aes.BlockSize {
		return nil, errPadding
	}
	for _, b := range buf[len(buf)-pad:] {
		if int(b) != pad {
			return nil, errPadding
		}
	}
	return buf[:len(buf)-pad], nil
}
