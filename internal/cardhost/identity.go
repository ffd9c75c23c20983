package cardhost

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/cardlink/cardlink/internal/common"
)

// identityFile is the on-disk identity record: the host's stable identifier
// and the seed of its Ed25519 signing key.
type identityFile struct {
	CardhostID string `toml:"cardhost_id"`
	KeySeed    string `toml:"key_seed"` // base64 Ed25519 seed
}

// LoadOrCreateIdentity reads the host identity from path, generating and
// persisting a fresh one on first run. The key never leaves this file; the
// router only ever sees the public half.
func LoadOrCreateIdentity(path string) (string, ed25519.PrivateKey, error) {
	content, err := os.ReadFile(path)
	if err == nil {
		var id identityFile
		if _, err := toml.Decode(string(content), &id); err != nil {
			return "", nil, fmt.Errorf("error parsing identity file: %v", err)
		}
		seed, err := base64.StdEncoding.DecodeString(id.KeySeed)
		if err != nil || len(seed) != ed25519.SeedSize {
			return "", nil, fmt.Errorf("identity file has a malformed key seed")
		}
		if id.CardhostID == "" {
			return "", nil, fmt.Errorf("identity file missing cardhost_id")
		}
		return id.CardhostID, ed25519.NewKeyFromSeed(seed), nil
	}
	if !os.IsNotExist(err) {
		return "", nil, fmt.Errorf("error reading identity file: %v", err)
	}

	cardhostID, err := common.NewCardhostId()
	if err != nil {
		return "", nil, err
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return "", nil, fmt.Errorf("error generating key seed: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", nil, fmt.Errorf("error creating identity directory: %v", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", nil, fmt.Errorf("error creating identity file: %v", err)
	}
	defer f.Close()

	id := identityFile{
		CardhostID: cardhostID,
		KeySeed:    base64.StdEncoding.EncodeToString(seed),
	}
	if err := toml.NewEncoder(f).Encode(id); err != nil {
		return "", nil, fmt.Errorf("error writing identity file: %v", err)
	}
	return cardhostID, ed25519.NewKeyFromSeed(seed), nil
}
