package refstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// MarshalCanonical encodes the snapshot as RFC 8785 canonical JSON, keyed by
// test case ID. The encoding is byte-stable for equal snapshots.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	doc := make(map[string]any, s.Len())
	if s != nil {
		for id, v := range s.values {
			doc[strconv.Itoa(id)] = v
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize snapshot: %w", err)
	}
	return canonical, nil
}

// Digest returns the hex SHA-256 of the canonical encoding.
func (s *Snapshot) Digest() (string, error) {
	data, err := s.MarshalCanonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Save writes the snapshot to path as canonical JSON.
func (s *Snapshot) Save(path string) error {
	data, err := s.MarshalCanonical()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return Unmarshal(data)
}

// Unmarshal decodes a snapshot from JSON.
func Unmarshal(data []byte) (*Snapshot, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	b := NewBuilder()
	for key, v := range doc {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("invalid test case id %q in snapshot", key)
		}
		b.Put(id, v)
	}
	return b.Freeze(), nil
}
