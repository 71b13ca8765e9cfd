// Package vault implements the password-protected container for a user's
// signing key. A vault is Uninitialized, Locked, or Unlocked; the plaintext
// private key exists only in memory while Unlocked, and the persisted record
// only ever carries the KDF-wrapped ciphertext.
package vault

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sync"

	"nullspace/go-auth/internal/hexutil"
	"nullspace/go-auth/internal/keysigner"
	"nullspace/go-auth/internal/securestore"

	"github.com/tyler-smith/go-bip39"
)

var (
	ErrWeakPassword       = errors.New("password must be at least 12 characters")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidRecoveryKey = errors.New("recovery key must be 64 lowercase hex characters")
	ErrVaultLocked        = errors.New("vault is locked")
	ErrVaultMissing       = errors.New("vault is not initialized")
	ErrVaultExists        = errors.New("vault already exists")
)

const (
	MinPasswordLen = 12

	recordEntry = "vault.record"
	legacyEntry = "legacy.key"
	recordVer   = 1
)

// Record is the persisted vault shape. Everything in it is safe to store on
// an untrusted medium: the private key appears only inside the AEAD envelope.
type Record struct {
	Version             int                   `json:"version"`
	PublicKeyHex        string                `json:"public_key_hex"`
	KDFSalt             []byte                `json:"kdf_salt"`
	KDFParams           securestore.KDFParams `json:"kdf_params"`
	EncryptedPrivateKey []byte                `json:"encrypted_private_key"`
}

type State int

const (
	StateUninitialized State = iota
	StateLocked
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return "uninitialized"
	}
}

type Vault struct {
	mu     sync.Mutex
	store  securestore.KV
	seed   []byte // nil unless unlocked
	signer *keysigner.Signer
}

func New(store securestore.KV) *Vault {
	return &Vault{store: store}
}

// State reports the current lifecycle state.
func (v *Vault) State() (State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seed != nil {
		return StateUnlocked, nil
	}
	_, ok, err := v.loadRecord()
	if err != nil {
		return StateUninitialized, err
	}
	if ok {
		return StateLocked, nil
	}
	return StateUninitialized, nil
}

// Create generates a fresh keypair wrapped under password and leaves the
// vault Unlocked. It refuses to overwrite an existing vault.
func (v *Vault) Create(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", ErrWeakPassword
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok, err := v.loadRecord(); err != nil {
		return "", err
	} else if ok {
		return "", ErrVaultExists
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return "", err
	}
	return v.installLocked(seed, password)
}

// Unlock re-derives the KDF key and decrypts the wrapped private key. Any
// decryption failure, including a corrupt record, is ErrInvalidPassword; the
// two are operationally indistinguishable and telling them apart would leak.
func (v *Vault) Unlock(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seed != nil {
		return nil
	}
	rec, ok, err := v.loadRecord()
	if err != nil {
		return err
	}
	if !ok {
		return ErrVaultMissing
	}
	key := securestore.DeriveKey(password, rec.KDFSalt, rec.KDFParams)
	defer securestore.Zero(key)
	seed, err := securestore.Open(key, rec.EncryptedPrivateKey)
	if err != nil || len(seed) != ed25519.SeedSize {
		return ErrInvalidPassword
	}
	return v.adoptSeedLocked(seed)
}

// Lock discards the in-memory key material. Idempotent, never fails.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropKeyLocked()
}

// Signer returns the live signer while Unlocked.
func (v *Vault) Signer() (*keysigner.Signer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.signer == nil {
		return nil, ErrVaultLocked
	}
	return v.signer, nil
}

// PublicKeyHex is available in any initialized state.
func (v *Vault) PublicKeyHex() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok, err := v.loadRecord()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrVaultMissing
	}
	return rec.PublicKeyHex, nil
}

// ExportRecoveryKey reveals the raw 32-byte private key as 64 lowercase hex
// characters. This is the only operation that returns the key to the caller;
// it requires Unlocked and the result must be shown once, never cached.
func (v *Vault) ExportRecoveryKey() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seed == nil {
		return "", ErrVaultLocked
	}
	return hexutil.Encode(v.seed), nil
}

// ExportRecoveryPhrase renders the same 32 bytes as a 24-word BIP-39
// mnemonic, bit-compatible with the hex recovery key.
func (v *Vault) ExportRecoveryPhrase() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seed == nil {
		return "", ErrVaultLocked
	}
	return bip39.NewMnemonic(append([]byte(nil), v.seed...))
}

// ImportRecoveryKey restores a vault from the 64-hex recovery artifact,
// wrapped under newPassword. Both validations always run so either failure
// is observable independently; the existing vault (if any) is replaced only
// by the single final write.
func (v *Vault) ImportRecoveryKey(recoveryHex, newPassword string) (string, error) {
	keyErr := error(nil)
	if !hexutil.IsExact(recoveryHex, ed25519.SeedSize) {
		keyErr = ErrInvalidRecoveryKey
	}
	passErr := error(nil)
	if len(newPassword) < MinPasswordLen {
		passErr = ErrWeakPassword
	}
	if keyErr != nil {
		return "", keyErr
	}
	if passErr != nil {
		return "", passErr
	}

	seed, err := hexutil.DecodeExact(recoveryHex, ed25519.SeedSize)
	if err != nil {
		return "", ErrInvalidRecoveryKey
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.installLocked(seed, newPassword)
}

// ImportRecoveryPhrase accepts the mnemonic encoding of a recovery key.
func (v *Vault) ImportRecoveryPhrase(mnemonic, newPassword string) (string, error) {
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil || len(entropy) != ed25519.SeedSize {
		// Password validity is still reported independently of the phrase.
		if len(newPassword) < MinPasswordLen {
			return "", ErrWeakPassword
		}
		return "", ErrInvalidRecoveryKey
	}
	return v.ImportRecoveryKey(hexutil.Encode(entropy), newPassword)
}

// ChangePassword re-wraps the private key under a new password.
func (v *Vault) ChangePassword(oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLen {
		return ErrWeakPassword
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok, err := v.loadRecord()
	if err != nil {
		return err
	}
	if !ok {
		return ErrVaultMissing
	}
	key := securestore.DeriveKey(oldPassword, rec.KDFSalt, rec.KDFParams)
	seed, err := securestore.Open(key, rec.EncryptedPrivateKey)
	securestore.Zero(key)
	if err != nil || len(seed) != ed25519.SeedSize {
		return ErrInvalidPassword
	}
	_, err = v.installLocked(seed, newPassword)
	return err
}

// MigrateLegacyKey adopts a pre-vault plaintext key left behind by old
// installs: the raw key is wrapped under password and the unprotected copy
// destroyed.
func (v *Vault) MigrateLegacyKey(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", ErrWeakPassword
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	raw, ok, err := v.store.Get(legacyEntry)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrVaultMissing
	}
	var seed []byte
	switch len(raw) {
	case ed25519.SeedSize:
		seed = append([]byte(nil), raw...)
	case ed25519.PrivateKeySize:
		seed = append([]byte(nil), raw[:ed25519.SeedSize]...)
	default:
		return "", ErrInvalidRecoveryKey
	}
	securestore.Zero(raw)
	pub, err := v.installLocked(seed, password)
	if err != nil {
		return "", err
	}
	if err := v.store.Delete(legacyEntry); err != nil {
		return "", err
	}
	return pub, nil
}

// Delete erases the vault record irreversibly. The only recovery path after
// this is the user-held recovery key.
func (v *Vault) Delete() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.store.Delete(recordEntry); err != nil {
		return err
	}
	v.dropKeyLocked()
	return nil
}

// installLocked wraps seed under password, persists the record with a single
// write, and leaves the vault unlocked over seed. Callers hold v.mu.
func (v *Vault) installLocked(seed []byte, password string) (string, error) {
	salt, err := securestore.NewSalt()
	if err != nil {
		return "", err
	}
	params := securestore.DefaultKDFParams()
	key := securestore.DeriveKey(password, salt, params)
	wrapped, err := securestore.Seal(key, seed)
	securestore.Zero(key)
	if err != nil {
		return "", err
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	rec := Record{
		Version:             recordVer,
		PublicKeyHex:        hexutil.Encode(pub),
		KDFSalt:             salt,
		KDFParams:           params,
		EncryptedPrivateKey: wrapped,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	if err := v.store.Set(recordEntry, raw); err != nil {
		return "", err
	}
	if err := v.adoptSeedLocked(seed); err != nil {
		return "", err
	}
	return rec.PublicKeyHex, nil
}

func (v *Vault) adoptSeedLocked(seed []byte) error {
	signer, err := keysigner.FromSeed(seed)
	if err != nil {
		return err
	}
	v.dropKeyLocked()
	v.seed = seed
	v.signer = signer
	return nil
}

func (v *Vault) dropKeyLocked() {
	securestore.Zero(v.seed)
	v.seed = nil
	if v.signer != nil {
		v.signer.Forget()
		v.signer = nil
	}
}

func (v *Vault) loadRecord() (Record, bool, error) {
	raw, ok, err := v.store.Get(recordEntry)
	if err != nil || !ok {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, securestore.ErrInvalidEnvelope
	}
	return rec, true, nil
}
