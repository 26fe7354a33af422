// Package snapshot persists trained model parameters together with the
// configuration that produced them.
//
// A snapshot is a single binary file:
//
//	[0:4]   magic "TINN"
//	[4:8]   format version, little endian
//	[8:12]  JSON header length, little endian
//	[12:44] SHA-256 of the parameter payload
//	[44:]   JSON header, padded to the 64 byte data alignment
//	...     parameters as little endian float32
//
// The header carries the full training configuration, so a loaded snapshot
// can rebuild the exact network, encoding and optimizer it was trained with.
package snapshot

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/tinn-ml/tinn/config"
)

const (
	// Magic identifies a snapshot file.
	Magic = "TINN"

	// FormatVersion is the current snapshot format version.
	FormatVersion = 1

	// DataAlignment is the byte alignment of the parameter payload.
	DataAlignment = 64
)

var (
	ErrBadMagic           = errors.New("snapshot: bad magic bytes")
	ErrUnsupportedVersion = errors.New("snapshot: unsupported format version")
	ErrChecksumMismatch   = errors.New("snapshot: checksum mismatch")
	ErrTruncated          = errors.New("snapshot: file truncated")
)

// Header is the JSON metadata block of a snapshot file.
type Header struct {
	FormatVersion int             `json:"format_version"`
	CreatedAt     time.Time       `json:"created_at"`
	ParamCount    int             `json:"n_params"`
	Step          int             `json:"step"`
	Config        config.Training `json:"config"`
}

// Save writes params and their training configuration to path.
//
// Step records how many optimizer steps produced the parameters; pass 0
// for an untrained model.
func Save(path string, cfg config.Training, params []float32, step int) error {
	header := Header{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
		ParamCount:    len(params),
		Step:          step,
		Config:        cfg,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	payload := make([]byte, 4*len(params))
	for i, p := range params {
		binary.LittleEndian.PutUint32(payload[4*i:], math.Float32bits(p))
	}
	sum := sha256.Sum256(payload)

	preamble := 4 + 4 + 4 + len(sum)
	dataOffset := align(preamble+len(headerJSON), DataAlignment)

	buf := make([]byte, dataOffset+len(payload))
	copy(buf, Magic)
	binary.LittleEndian.PutUint32(buf[4:], FormatVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(headerJSON)))
	copy(buf[12:], sum[:])
	copy(buf[preamble:], headerJSON)
	copy(buf[dataOffset:], payload)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot from path and returns its header and parameters.
func Load(path string) (Header, []float32, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Header{}, nil, fmt.Errorf("read snapshot: %w", err)
	}

	preamble := 4 + 4 + 4 + sha256.Size
	if len(buf) < preamble {
		return Header{}, nil, ErrTruncated
	}
	if string(buf[:4]) != Magic {
		return Header{}, nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint32(buf[4:]); v != FormatVersion {
		return Header{}, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	headerLen := int(binary.LittleEndian.Uint32(buf[8:]))
	var stored [sha256.Size]byte
	copy(stored[:], buf[12:])

	if len(buf) < preamble+headerLen {
		return Header{}, nil, ErrTruncated
	}
	var header Header
	if err := json.Unmarshal(buf[preamble:preamble+headerLen], &header); err != nil {
		return Header{}, nil, fmt.Errorf("unmarshal header: %w", err)
	}

	dataOffset := align(preamble+headerLen, DataAlignment)
	if len(buf) < dataOffset+4*header.ParamCount {
		return Header{}, nil, ErrTruncated
	}
	payload := buf[dataOffset : dataOffset+4*header.ParamCount]
	if sha256.Sum256(payload) != stored {
		return Header{}, nil, ErrChecksumMismatch
	}

	params := make([]float32, header.ParamCount)
	for i := range params {
		params[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}
	return header, params, nil
}

func align(n, to int) int {
	return (n + to - 1) / to * to
}
