// Package audit keeps a tamper-evident record of every dialog the bridge
// offered to remote controllers.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/dialogbridge/pkg/bus"
	"github.com/sipeed/dialogbridge/pkg/config"
	"github.com/sipeed/dialogbridge/pkg/redaction"
)

// Record is one line of the audit log.
type Record struct {
	Timestamp    time.Time `json:"timestamp"`
	DialogType   string    `json:"dialog_type"`
	Prompt       string    `json:"prompt"`
	Options      []string  `json:"options,omitempty"`
	Hash         string    `json:"hash"`
	PreviousHash string    `json:"previous_hash,omitempty"`
}

type Config struct {
	Path       string
	MaxSize    int64
	MaxBackups int
	// SecretKey signs records. When empty a key is loaded from, or
	// generated into, Path+".key".
	SecretKey []byte
}

func ConfigFrom(ac config.AuditConfig) Config {
	return Config{
		Path:       ac.Path,
		MaxSize:    ac.MaxSizeBytes,
		MaxBackups: ac.MaxBackups,
	}
}

// Sink writes dialog records to a rotating file.
type Sink struct {
	cfg      Config
	mu       sync.Mutex
	out      *rotatingFile
	lastHash string
	now      func() time.Time
}

func Open(cfg Config) (*Sink, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	if len(cfg.SecretKey) == 0 {
		key, err := loadOrCreateKey(cfg.Path + ".key")
		if err != nil {
			return nil, err
		}
		cfg.SecretKey = key
	}

	last, err := lastHash(cfg.Path)
	if err != nil {
		return nil, err
	}
	out, err := openRotating(cfg.Path, cfg.MaxSize, cfg.MaxBackups)
	if err != nil {
		return nil, err
	}
	return &Sink{cfg: cfg, out: out, lastHash: last, now: time.Now}, nil
}

// Record appends d, with its prompt redacted, to the chain.
func (s *Sink) Record(d bus.Dialog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		Timestamp:    s.now().UTC(),
		DialogType:   d.Type,
		Prompt:       redaction.Redact(d.Prompt),
		Options:      d.Options,
		PreviousHash: s.lastHash,
	}
	rec.Hash = computeHash(s.cfg.SecretKey, rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if err := s.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	s.lastHash = rec.Hash
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}

// VerifyChain checks every record in the current log file. The first record
// may point at a record in a rotated backup.
func (s *Sink) VerifyChain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return VerifyFile(s.cfg.Path, s.cfg.SecretKey)
}

// VerifyFile checks the hash chain of the audit log at path.
func VerifyFile(path string, key []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var prev string
	n := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		n++
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("failed to parse record %d: %w", n, err)
		}
		if n > 1 && rec.PreviousHash != prev {
			return fmt.Errorf("hash chain broken at record %d", n)
		}
		if !hmac.Equal([]byte(rec.Hash), []byte(computeHash(key, rec))) {
			return fmt.Errorf("record hash mismatch at record %d", n)
		}
		prev = rec.Hash
	}
	return sc.Err()
}

func computeHash(key []byte, rec Record) string {
	h := hmac.New(sha256.New, key)
	fmt.Fprintf(h, "%s|%s|%s|%s|%s",
		rec.Timestamp.Format(time.RFC3339Nano),
		rec.DialogType,
		rec.Prompt,
		strings.Join(rec.Options, "\x1f"),
		rec.PreviousHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// LoadKey reads the signing key stored beside the audit log at path.
func LoadKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path + ".key")
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimSpace(string(data)))
}

func loadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, derr := hex.DecodeString(strings.TrimSpace(string(data)))
		if derr != nil {
			return nil, fmt.Errorf("invalid audit key %s: %w", path, derr)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read audit key: %w", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate audit key: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write audit key: %w", err)
	}
	return key, nil
}

func lastHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read audit log: %w", err)
	}
	data = bytes.TrimRight(data, "\n")
	if len(data) == 0 {
		return "", nil
	}
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		data = data[i+1:]
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("failed to parse last audit record: %w", err)
	}
	return rec.Hash, nil
}
