package config

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deskdata/deskdata/internal/secrets"
)

// ErrNoSecretKey is returned when the local secret backend is used without
// an encryption key.
var ErrNoSecretKey = errors.New("local secret backend requires secrets.local_key")

// LocalSecretStore implements secrets.Store on top of the SQLite store.
// Values are sealed with AES-256-GCM under a key derived from a passphrase.
type LocalSecretStore struct {
	store *Store
	aead  cipher.AEAD
}

// NewLocalSecretStore derives the sealing key from passphrase.
func NewLocalSecretStore(store *Store, passphrase string) (*LocalSecretStore, error) {
	if passphrase == "" {
		return nil, ErrNoSecretKey
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &LocalSecretStore{store: store, aead: aead}, nil
}

type secretRow struct {
	Name       string    `db:"name"`
	Nonce      []byte    `db:"nonce"`
	Ciphertext []byte    `db:"ciphertext"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (l *LocalSecretStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	var row secretRow
	if err := l.store.db.GetContext(ctx, &row, "SELECT * FROM secrets WHERE name = ?", name); err != nil {
		if err == sql.ErrNoRows {
			return nil, secrets.ErrNotFound
		}
		return nil, fmt.Errorf("get secret: %w", err)
	}

	// The name is bound as additional data so a row copied under another
	// name fails to open.
	plain, err := l.aead.Open(nil, row.Nonce, row.Ciphertext, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("open secret %s: %w", name, err)
	}
	return plain, nil
}

func (l *LocalSecretStore) PutSecret(ctx context.Context, name string, value []byte) error {
	nonce := make([]byte, l.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	row := secretRow{
		Name:       name,
		Nonce:      nonce,
		Ciphertext: l.aead.Seal(nil, nonce, value, []byte(name)),
		UpdatedAt:  time.Now().UTC(),
	}

	const q = `INSERT INTO secrets (name, nonce, ciphertext, updated_at)
		VALUES (:name, :nonce, :ciphertext, :updated_at)
		ON CONFLICT(name) DO UPDATE SET
		nonce = excluded.nonce,
		ciphertext = excluded.ciphertext,
		updated_at = excluded.updated_at`

	if _, err := l.store.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("put secret: %w", err)
	}
	return nil
}

func (l *LocalSecretStore) DeleteSecret(ctx context.Context, name string) error {
	result, err := l.store.db.ExecContext(ctx, "DELETE FROM secrets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete secret rows affected: %w", err)
	}
	if n == 0 {
		return secrets.ErrNotFound
	}
	return nil
}
