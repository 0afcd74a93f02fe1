package token

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/izikwen-client/internal/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	fileFormatVersion = 1
	fileSaltLen       = 16
	fileNonceLen      = 24
	fileKeyLen        = 32

	// Argon2id parameters for deriving the sealing key from the store secret.
	argonTime      = 1
	argonMemoryKiB = 32 * 1024
	argonThreads   = 2
)

// fileDocument is the on-disk layout. Exactly one of Values or Sealed is set.
type fileDocument struct {
	Version int               `json:"version"`
	Salt    []byte            `json:"salt,omitempty"`
	Sealed  []byte            `json:"sealed,omitempty"` // nonce || secretbox(values)
	Values  map[string]string `json:"values,omitempty"`
}

// FileRepo keeps all keys in a single JSON document. When a secret is
// configured the values are sealed with NaCl secretbox under an Argon2id key.
// Writes go to a temp file that is renamed over the document.
type FileRepo struct {
	mu     sync.Mutex
	path   string
	salt   []byte
	key    *[fileKeyLen]byte
	values map[string]string
}

var _ Repo = (*FileRepo)(nil)

// NewFileRepo opens (or prepares to create) the document at path.
func NewFileRepo(path, secret string) (*FileRepo, error) {
	if path == "" {
		return nil, fmt.Errorf("file repo path is required: %w", errors.ErrInvalidInput)
	}

	r := &FileRepo{path: path, values: make(map[string]string)}

	doc, err := readFileDocument(path)
	if err != nil {
		return nil, err
	}

	if secret != "" {
		r.salt = doc.Salt
		if len(r.salt) == 0 {
			r.salt = make([]byte, fileSaltLen)
			if _, err := rand.Read(r.salt); err != nil {
				return nil, fmt.Errorf("failed to generate salt: %w", err)
			}
		}
		r.key = deriveKey(secret, r.salt)
	}

	switch {
	case len(doc.Sealed) > 0:
		if r.key == nil {
			return nil, fmt.Errorf("credential file %s is sealed but no secret is configured", path)
		}
		values, err := open(doc.Sealed, r.key)
		if err != nil {
			return nil, err
		}
		r.values = values
	case doc.Values != nil:
		r.values = doc.Values
	}

	return r, nil
}

func (r *FileRepo) Get(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.values[key]
	if !ok {
		return "", errors.ErrNotFound
	}
	return v, nil
}

func (r *FileRepo) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.values[key]
	r.values[key] = value
	if err := r.flush(); err != nil {
		if existed {
			r.values[key] = prev
		} else {
			delete(r.values, key)
		}
		return err
	}
	return nil
}

func (r *FileRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.values[key]
	if !existed {
		return nil
	}
	delete(r.values, key)
	if err := r.flush(); err != nil {
		r.values[key] = prev
		return err
	}
	return nil
}

func (r *FileRepo) Close(context.Context) error {
	return nil
}

// flush must be called with r.mu held.
func (r *FileRepo) flush() error {
	doc := fileDocument{Version: fileFormatVersion}
	if r.key != nil {
		sealed, err := seal(r.values, r.key)
		if err != nil {
			return err
		}
		doc.Salt = r.salt
		doc.Sealed = sealed
	} else {
		doc.Values = r.values
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("os.MkdirAll: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("os.CreateTemp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}
	return nil
}

func readFileDocument(path string) (fileDocument, error) {
	var doc fileDocument
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("os.ReadFile: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("credential file %s is corrupt: %w", path, err)
	}
	if doc.Version != fileFormatVersion {
		return doc, fmt.Errorf("credential file version %d: %w", doc.Version, errors.ErrUnsupported)
	}
	return doc, nil
}

func deriveKey(secret string, salt []byte) *[fileKeyLen]byte {
	var key [fileKeyLen]byte
	copy(key[:], argon2.IDKey([]byte(secret), salt, argonTime, argonMemoryKiB, argonThreads, fileKeyLen))
	return &key
}

func seal(values map[string]string, key *[fileKeyLen]byte) ([]byte, error) {
	plain, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	var nonce [fileNonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, key), nil
}

func open(sealed []byte, key *[fileKeyLen]byte) (map[string]string, error) {
	if len(sealed) < fileNonceLen+secretbox.Overhead {
		return nil, fmt.Errorf("sealed credentials too short")
	}

	var nonce [fileNonceLen]byte
	copy(nonce[:], sealed[:fileNonceLen])
	plain, ok := secretbox.Open(nil, sealed[fileNonceLen:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("failed to open sealed credentials: wrong secret or tampered file")
	}

	values := make(map[string]string)
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return values, nil
}
