package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/relaysim/internal/schematic"
)

// FormatVersion is written to every archive header.
const FormatVersion = 1

// MaxPayloadSize caps the decompressed payload (64MB).
const MaxPayloadSize = 64 << 20

// Header is the plain JSON first line of an archive. It can be read
// without decompressing the payload that follows it.
type Header struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	Checksum   string    `json:"checksum"`
	Schematics int       `json:"schematics"`
}

// Archive is the decompressed payload: every stored schematic.
type Archive struct {
	Version    int                   `json:"version"`
	CreatedAt  time.Time             `json:"created_at"`
	Schematics []*schematic.Document `json:"schematics"`
}

// Write stores a as a header line followed by the gzip-compressed JSON
// payload. The header carries the SHA-256 of the compressed bytes.
func Write(path string, a *Archive) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header, err := json.Marshal(Header{
		Version:    a.Version,
		CreatedAt:  a.CreatedAt,
		Checksum:   checksum(compressed.Bytes()),
		Schematics: len(a.Schematics),
	})
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.Write(header)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	return f.Sync()
}

// Read verifies the checksum of the archive at path and decodes its payload.
func Read(path string) (*Archive, error) {
	_, compressed, err := open(path, true)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	payload, err := io.ReadAll(io.LimitReader(gzr, MaxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxPayloadSize)
	}

	var a Archive
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("parsing payload: %w", err)
	}
	return &a, nil
}

// ReadHeader returns the header line only.
func ReadHeader(path string) (*Header, error) {
	h, _, err := open(path, false)
	return h, err
}

// Verify checks the payload checksum without decompressing it.
func Verify(path string) error {
	_, _, err := open(path, true)
	return err
}

// open parses the header of the archive at path and, when withPayload is
// set, reads the compressed payload and checks it against the header.
func open(path string, withPayload bool) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header line: %w", err)
	}

	var h Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &h); err != nil {
		return nil, nil, fmt.Errorf("parsing header: %w", err)
	}
	if h.Version != FormatVersion {
		return nil, nil, fmt.Errorf("unsupported archive version %d", h.Version)
	}
	if !withPayload {
		return &h, nil, nil
	}

	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	if got := checksum(compressed); got != h.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", h.Checksum, got)
	}
	return &h, compressed, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
