package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

const (
	// AES-128
	KeyLength = 16
	IVLength  = 16

	Extension = ".key"
)

type Key struct {
	ID    string
	Bytes []byte
}

// Manager generates encryption keys. Entropy is read from Rand,
// crypto/rand when nil.
type Manager struct {
	Rand io.Reader
}

func New() *Manager {
	return &Manager{Rand: rand.Reader}
}

func (m *Manager) reader() io.Reader {
	if m == nil || m.Rand == nil {
		return rand.Reader
	}
	return m.Rand
}

// Generate returns fresh key bytes with a random, collision-resistant identifier.
func (m *Manager) Generate() (Key, error) {
	buf := make([]byte, KeyLength)
	if _, err := io.ReadFull(m.reader(), buf); err != nil {
		return Key{}, fmt.Errorf("unable to read key entropy: %w", err)
	}

	return Key{
		ID:    uuid.NewString() + Extension,
		Bytes: buf,
	}, nil
}

func (m *Manager) GenerateIV() ([]byte, error) {
	iv := make([]byte, IVLength)
	if _, err := io.ReadFull(m.reader(), iv); err != nil {
		return nil, fmt.Errorf("unable to read iv entropy: %w", err)
	}
	return iv, nil
}

// Descriptor is the key info file consumed by the transcoder: the URI
// written into playlists, the local path of the key and an optional IV.
type Descriptor struct {
	URI  string
	Path string
	IV   []byte
}

func (d Descriptor) String() string {
	lines := []string{d.URI, d.Path}
	if len(d.IV) > 0 {
		lines = append(lines, hex.EncodeToString(d.IV))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (d Descriptor) Write(path string) error {
	return os.WriteFile(path, []byte(d.String()), 0600)
}
