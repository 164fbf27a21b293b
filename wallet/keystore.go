// Package wallet provides identity-file management, key derivation, and
// transaction-building helpers.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"

	"github.com/tolelom/tolchain/crypto"
)

// pbkdf2Iterations and saltSize match spec.md §6's identity-file format
// exactly: "PBKDF2-HMAC-SHA256 (100 000 iterations, 16-byte salt)".
const (
	pbkdf2Iterations = 100_000
	saltSize         = 16
)

// IdentityFile is the on-disk JSON shape for a node or wallet's signing
// identity (spec.md §6): `{name, role, public_key, encrypted_mnemonic,
// encryption_salt}`. The mnemonic, not the raw private key, is what's
// encrypted at rest — losing the password still leaves a recoverable seed
// phrase, consistent with original_source/'s bip39-based key derivation.
type IdentityFile struct {
	Name              string `json:"name"`
	Role              string `json:"role"`
	PublicKey         string `json:"public_key"`
	EncryptedMnemonic string `json:"encrypted_mnemonic"` // hex: nonce || ciphertext
	EncryptionSalt    string `json:"encryption_salt"`    // hex, 16 bytes
}

// GenerateMnemonic returns a fresh 12-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// KeyFromMnemonic derives a deterministic ed25519 key pair from a BIP-39
// mnemonic, seeded via bip39.NewSeed (no passphrase — the identity file's
// own password protects the mnemonic at rest, not the derivation itself).
func KeyFromMnemonic(mnemonic string) (crypto.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	return crypto.PrivateKey(priv), nil
}

// SaveIdentity generates a new mnemonic, derives its key pair, encrypts the
// mnemonic with password, and writes an IdentityFile to path. Returns the
// mnemonic so the caller can display it once for the operator to record.
func SaveIdentity(path, name, role, password string) (mnemonic string, priv crypto.PrivateKey, err error) {
	mnemonic, err = GenerateMnemonic()
	if err != nil {
		return "", nil, err
	}
	priv, err = KeyFromMnemonic(mnemonic)
	if err != nil {
		return "", nil, err
	}
	if err := writeIdentity(path, name, role, password, mnemonic, priv.Public().Hex()); err != nil {
		return "", nil, err
	}
	return mnemonic, priv, nil
}

// ImportIdentity derives a key pair from an existing mnemonic (e.g. one
// recorded from a prior SaveIdentity call) and writes an IdentityFile for it,
// letting an operator restore a wallet on a new machine.
func ImportIdentity(path, name, role, password, mnemonic string) (crypto.PrivateKey, error) {
	priv, err := KeyFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	if err := writeIdentity(path, name, role, password, mnemonic, priv.Public().Hex()); err != nil {
		return nil, err
	}
	return priv, nil
}

func writeIdentity(path, name, role, password, mnemonic, pubHex string) error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	key := deriveKey(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(mnemonic), nil)

	id := IdentityFile{
		Name:              name,
		Role:              role,
		PublicKey:         pubHex,
		EncryptedMnemonic: hex.EncodeToString(sealed),
		EncryptionSalt:    hex.EncodeToString(salt),
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadIdentity decrypts the identity file at path using password and
// re-derives its signing key from the recovered mnemonic.
func LoadIdentity(path, password string) (*IdentityFile, crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var id IdentityFile
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, nil, fmt.Errorf("parse identity file: %w", err)
	}

	salt, err := hex.DecodeString(id.EncryptionSalt)
	if err != nil {
		return nil, nil, fmt.Errorf("decode salt: %w", err)
	}
	sealed, err := hex.DecodeString(id.EncryptedMnemonic)
	if err != nil {
		return nil, nil, fmt.Errorf("decode encrypted mnemonic: %w", err)
	}

	key := deriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, nil, errors.New("corrupted identity file")
	}
	nonce, cipherText := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	mnemonic, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, nil, errors.New("wrong password or corrupted identity file")
	}

	priv, err := KeyFromMnemonic(string(mnemonic))
	if err != nil {
		return nil, nil, err
	}
	if priv.Public().Hex() != id.PublicKey {
		return nil, nil, errors.New("derived public key does not match identity file")
	}
	return &id, priv, nil
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
}
