// Package keystore reads and writes passphrase-encrypted keyfiles. The
// passphrase runs through scrypt and the derived key seals the private
// scalar with AES-256-GCM.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"

	"github.com/cinder-labs/cinder/crypto"
	"github.com/cinder-labs/cinder/crypto/address"
)

const (
	keyLen   = 32 // AES-256
	saltSize = 32

	// Interactive scrypt cost.
	scryptN = 32768
	scryptR = 8
	scryptP = 1

	cipherName = "aes-256-gcm"
	kdfName    = "scrypt"
	version    = 1
)

var ErrWrongPassphrase = errors.New("could not decrypt keyfile, passphrase may be wrong")

type cryptoParams struct {
	Cipher     string `json:"cipher"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	KDF        string `json:"kdf"`
	Salt       string `json:"salt"`
	N          int    `json:"n"`
	R          int    `json:"r"`
	P          int    `json:"p"`
}

type keyfile struct {
	ID      string          `json:"id"`
	Address address.Address `json:"address"`
	Crypto  cryptoParams    `json:"crypto"`
	Version int             `json:"version"`
}

// Encrypt seals the signer's private scalar under the passphrase and
// returns the keyfile JSON.
func Encrypt(signer crypto.Signer, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, signer.Bytes(), nil)

	kf := keyfile{
		ID:      uuid.New().String(),
		Address: signer.Address(),
		Crypto: cryptoParams{
			Cipher:     cipherName,
			Ciphertext: hex.EncodeToString(ciphertext),
			Nonce:      hex.EncodeToString(nonce),
			KDF:        kdfName,
			Salt:       hex.EncodeToString(salt),
			N:          scryptN,
			R:          scryptR,
			P:          scryptP,
		},
		Version: version,
	}
	return json.MarshalIndent(&kf, "", "  ")
}

// Decrypt recovers the signer from keyfile JSON and its passphrase.
func Decrypt(keyjson []byte, passphrase string) (crypto.Signer, error) {
	var kf keyfile
	if err := json.Unmarshal(keyjson, &kf); err != nil {
		return nil, fmt.Errorf("malformed keyfile: %v", err)
	}
	if kf.Crypto.Cipher != cipherName || kf.Crypto.KDF != kdfName {
		return nil, fmt.Errorf("unsupported keyfile: cipher %q kdf %q", kf.Crypto.Cipher, kf.Crypto.KDF)
	}

	salt, err := hex.DecodeString(kf.Crypto.Salt)
	if err != nil {
		return nil, fmt.Errorf("malformed keyfile salt: %v", err)
	}
	nonce, err := hex.DecodeString(kf.Crypto.Nonce)
	if err != nil {
		return nil, fmt.Errorf("malformed keyfile nonce: %v", err)
	}
	ciphertext, err := hex.DecodeString(kf.Crypto.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("malformed keyfile ciphertext: %v", err)
	}

	derived, err := scrypt.Key([]byte(passphrase), salt, kf.Crypto.N, kf.Crypto.R, kf.Crypto.P, keyLen)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}

	signer, err := crypto.NewPrivateKeyFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("keyfile holds an invalid key: %v", err)
	}
	if signer.Address() != kf.Address {
		return nil, errors.New("keyfile address does not match its key")
	}
	return signer, nil
}

// WriteFile encrypts the signer under the passphrase and writes the
// keyfile, readable by its owner only.
func WriteFile(path string, signer crypto.Signer, passphrase string) error {
	keyjson, err := Encrypt(signer, passphrase)
	if err != nil {
		return err
	}
	return os.WriteFile(path, keyjson, 0o600)
}

// ReadFile loads and decrypts a keyfile written by WriteFile.
func ReadFile(path string, passphrase string) (crypto.Signer, error) {
	keyjson, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decrypt(keyjson, passphrase)
}
