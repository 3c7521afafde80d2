// Package format encodes recordings as self-describing binary blobs.
//
// Layout, all little-endian:
//
//	header   magic "MOCP" | version u32 | frameCount u32 | duration f64 | createdAt i64 (unix nanos)
//	body     frameCount records, each a u32 length followed by
//	         time f64 | position 3×f64 | rotation 4×f64 | flags u8 | jointCount u16 | joints
//	joint    kind u16 | position 3×f64 | rotation 4×f64 | flags u8
//	trailer  CRC-32 (IEEE) of the body
//
// The header has a fixed size so metadata can be read without touching the body.
package format

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"time"

	"github.com/OCAP2/mocap/pkg/core"
)

const (
	Magic      = "MOCP"
	Version    = core.FormatVersion
	HeaderSize = 28

	sampleFixedSize = 8 + 24 + 32 + 1 + 2
	jointSize       = 2 + 24 + 32 + 1
	// maxRecordSize bounds a single record so a corrupt length cannot force a huge allocation.
	maxRecordSize = sampleFixedSize + math.MaxUint16*jointSize
)

const flagTracked = 1 << 0

var (
	ErrBadMagic           = errors.New("bad magic")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrTruncated          = errors.New("truncated data")
	ErrChecksum           = errors.New("checksum mismatch")
	ErrInconsistent       = errors.New("header does not match body")
	ErrTooLarge           = errors.New("recording too large to encode")
)

var le = binary.LittleEndian

// Header is the fixed-size prefix of every blob.
type Header struct {
	Version    uint32
	FrameCount uint32
	Duration   float64
	CreatedAt  time.Time
}

// Metadata converts the header into recording metadata for name.
func (h Header) Metadata(name string, size int64) core.RecordingMetadata {
	return core.RecordingMetadata{
		Name:          name,
		Duration:      h.Duration,
		FrameCount:    int(h.FrameCount),
		FileSize:      size,
		CreatedAt:     h.CreatedAt,
		FormatVersion: h.Version,
	}
}

func appendFloat(b []byte, f float64) []byte {
	return le.AppendUint64(b, math.Float64bits(f))
}

func appendPose(b []byte, p core.Vec3, q core.Quat) []byte {
	b = appendFloat(b, p.X)
	b = appendFloat(b, p.Y)
	b = appendFloat(b, p.Z)
	b = appendFloat(b, q.X)
	b = appendFloat(b, q.Y)
	b = appendFloat(b, q.Z)
	return appendFloat(b, q.W)
}

func flags(tracked bool) byte {
	if tracked {
		return flagTracked
	}
	return 0
}

// EncodeHeader returns the header bytes for rec.
func EncodeHeader(rec *core.Recording, createdAt time.Time) ([]byte, error) {
	if rec.FrameCount > math.MaxUint32 {
		return nil, ErrTooLarge
	}
	b := make([]byte, 0, HeaderSize)
	b = append(b, Magic...)
	b = le.AppendUint32(b, Version)
	b = le.AppendUint32(b, uint32(rec.FrameCount))
	b = appendFloat(b, rec.Duration)
	b = le.AppendUint64(b, uint64(createdAt.UnixNano()))
	return b, nil
}

// Encode writes rec to w. The header is taken from rec's derived fields, so
// rec must pass Validate.
func Encode(w io.Writer, rec *core.Recording, createdAt time.Time) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	header, err := EncodeHeader(rec, createdAt)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(header); err != nil {
		return err
	}

	crc := crc32.NewIEEE()
	body := io.MultiWriter(bw, crc)

	var scratch []byte
	for i := range rec.Samples {
		s := &rec.Samples[i]
		if len(s.Joints) > math.MaxUint16 {
			return fmt.Errorf("sample %d: %w", i, ErrTooLarge)
		}

		scratch = scratch[:0]
		scratch = le.AppendUint32(scratch, uint32(sampleFixedSize+len(s.Joints)*jointSize))
		scratch = appendFloat(scratch, s.Time)
		scratch = appendPose(scratch, s.Position, s.Rotation)
		scratch = append(scratch, flags(s.Tracked))
		scratch = le.AppendUint16(scratch, uint16(len(s.Joints)))
		for _, j := range s.Joints {
			scratch = le.AppendUint16(scratch, uint16(j.Joint))
			scratch = appendPose(scratch, j.Position, j.Rotation)
			scratch = append(scratch, flags(j.Tracked))
		}
		if _, err := body.Write(scratch); err != nil {
			return err
		}
	}

	if _, err := bw.Write(le.AppendUint32(nil, crc.Sum32())); err != nil {
		return err
	}
	return bw.Flush()
}

// DecodeHeader parses the fixed-size header at the start of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrTruncated
	}
	if string(b[:4]) != Magic {
		return Header{}, ErrBadMagic
	}
	h := Header{
		Version:    le.Uint32(b[4:8]),
		FrameCount: le.Uint32(b[8:12]),
		Duration:   math.Float64frombits(le.Uint64(b[12:20])),
		CreatedAt:  time.Unix(0, int64(le.Uint64(b[20:28]))).UTC(),
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}

// ReadHeader reads only the header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, ErrTruncated
		}
		return Header{}, err
	}
	return DecodeHeader(buf[:])
}

// Decode reads a full recording from r and verifies it against its header and checksum.
func Decode(r io.Reader) (*core.Recording, Header, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, h, err
	}

	crc := crc32.NewIEEE()
	body := io.TeeReader(br, crc)

	samples := make([]core.PoseSample, 0, min(int(h.FrameCount), 1<<16))
	var lenBuf [4]byte
	var buf []byte
	for i := uint32(0); i < h.FrameCount; i++ {
		if err := readFull(body, lenBuf[:]); err != nil {
			return nil, h, fmt.Errorf("sample %d: %w", i, err)
		}
		n := le.Uint32(lenBuf[:])
		if n < sampleFixedSize || n > maxRecordSize {
			return nil, h, fmt.Errorf("sample %d: %w: record length %d", i, ErrInconsistent, n)
		}
		if cap(buf) < int(n) {
			buf = make([]byte, n)
		}
		buf = buf[:n]
		if err := readFull(body, buf); err != nil {
			return nil, h, fmt.Errorf("sample %d: %w", i, err)
		}
		s, err := decodeSample(buf)
		if err != nil {
			return nil, h, fmt.Errorf("sample %d: %w", i, err)
		}
		samples = append(samples, s)
	}

	if err := readFull(br, lenBuf[:]); err != nil {
		return nil, h, fmt.Errorf("trailer: %w", err)
	}
	if le.Uint32(lenBuf[:]) != crc.Sum32() {
		return nil, h, ErrChecksum
	}

	rec := core.NewRecording(samples)
	if rec.Duration != h.Duration {
		return nil, h, fmt.Errorf("%w: duration %v, last sample %v", ErrInconsistent, h.Duration, rec.Duration)
	}
	if err := rec.Validate(); err != nil {
		return nil, h, fmt.Errorf("%w: %v", ErrInconsistent, err)
	}
	return rec, h, nil
}

func readFull(r io.Reader, b []byte) error {
	if _, err := io.ReadFull(r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncated
		}
		return err
	}
	return nil
}

type cursor struct {
	b   []byte
	off int
}

func (c *cursor) float() float64 {
	v := math.Float64frombits(le.Uint64(c.b[c.off:]))
	c.off += 8
	return v
}

func (c *cursor) pose() (core.Vec3, core.Quat) {
	p := core.Vec3{X: c.float(), Y: c.float(), Z: c.float()}
	q := core.Quat{X: c.float(), Y: c.float(), Z: c.float(), W: c.float()}
	return p, q
}

func (c *cursor) u16() uint16 {
	v := le.Uint16(c.b[c.off:])
	c.off += 2
	return v
}

func (c *cursor) u8() byte {
	v := c.b[c.off]
	c.off++
	return v
}

func decodeSample(b []byte) (core.PoseSample, error) {
	c := &cursor{b: b}
	var s core.PoseSample
	s.Time = c.float()
	s.Position, s.Rotation = c.pose()
	s.Tracked = c.u8()&flagTracked != 0

	count := int(c.u16())
	if len(b) != sampleFixedSize+count*jointSize {
		return s, fmt.Errorf("%w: %d joints in %d bytes", ErrInconsistent, count, len(b))
	}
	if count == 0 {
		return s, nil
	}

	s.Joints = make([]core.JointSample, count)
	for i := range s.Joints {
		j := &s.Joints[i]
		j.Joint = core.JointKind(c.u16())
		j.Position, j.Rotation = c.pose()
		j.Tracked = c.u8()&flagTracked != 0
	}
	return s, nil
}

// Marshal encodes rec into a new byte slice.
func Marshal(rec *core.Recording, createdAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + rec.FrameCount*(4+sampleFixedSize) + 4)
	if err := Encode(&buf, rec, createdAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a blob produced by Marshal or Encode.
func Unmarshal(b []byte) (*core.Recording, Header, error) {
	return Decode(bytes.NewReader(b))
}

// IsCorrupt reports whether err came from malformed data rather than the
// underlying reader.
func IsCorrupt(err error) bool {
	for _, target := range []error{ErrBadMagic, ErrUnsupportedVersion, ErrTruncated, ErrChecksum, ErrInconsistent} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
