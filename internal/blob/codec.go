package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Format is the one-byte tag that prefixes every blob.
type Format byte

const (
	// FormatJSON is the legacy serialization.
	FormatJSON Format = 0x01

	// FormatCBOR is the current serialization.
	FormatCBOR Format = 0x02
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("format(0x%02x)", byte(f))
	}
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encode mode: %v", err))
	}
	cborDec, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decode mode: %v", err))
	}
}

// Decoder accepts payloads tagged with one format.
type Decoder struct {
	Format Format
	Decode func(payload []byte, v any) error
}

// CBORDecoder decodes the current format.
func CBORDecoder() Decoder {
	return Decoder{Format: FormatCBOR, Decode: cborDec.Unmarshal}
}

// JSONDecoder decodes the legacy format.
func JSONDecoder() Decoder {
	return Decoder{Format: FormatJSON, Decode: json.Unmarshal}
}

// DecodeAttempt records why one decoder rejected a blob.
type DecodeAttempt struct {
	Format Format
	Err    error
}

// RetrievalError reports a blob that no decoder could read.
type RetrievalError struct {
	Key      string
	Attempts []DecodeAttempt
}

func (e *RetrievalError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("getting data with %s failed with %v", a.Format, a.Err)
	}
	msg := strings.Join(parts, ", ")
	if e.Key != "" {
		return fmt.Sprintf("retrieve %s: %s", e.Key, msg)
	}
	return "retrieve blob: " + msg
}

// Unwrap exposes every decoder error to errors.Is and errors.As.
func (e *RetrievalError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// IsRetrievalError reports whether err is, or wraps, a *RetrievalError.
func IsRetrievalError(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re)
}

// Codec writes one format and reads an ordered list of formats.
type Codec struct {
	write    Format
	decoders []Decoder
}

// NewCodec returns a codec that writes format and reads with decoders in
// the given order.
func NewCodec(write Format, decoders ...Decoder) (*Codec, error) {
	if write != FormatJSON && write != FormatCBOR {
		return nil, fmt.Errorf("unsupported write format %s", write)
	}
	if len(decoders) == 0 {
		return nil, errors.New("codec needs at least one decoder")
	}
	return &Codec{write: write, decoders: decoders}, nil
}

// DefaultCodec writes CBOR and reads CBOR, falling back to legacy JSON.
func DefaultCodec() *Codec {
	return &Codec{write: FormatCBOR, decoders: []Decoder{CBORDecoder(), JSONDecoder()}}
}

// LegacyCodec writes the legacy JSON format. Used to produce fixtures of
// blobs written before the CBOR migration.
func LegacyCodec() *Codec {
	return &Codec{write: FormatJSON, decoders: []Decoder{JSONDecoder()}}
}

// WriteFormat returns the format Encode produces.
func (c *Codec) WriteFormat() Format {
	return c.write
}

// Encode serializes v in the codec's write format, prefixed by its tag.
func (c *Codec) Encode(v any) ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	switch c.write {
	case FormatCBOR:
		payload, err = cborEnc.Marshal(v)
	case FormatJSON:
		payload, err = json.Marshal(v)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.write, err)
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(c.write))
	return append(out, payload...), nil
}

// Decode tries each decoder in order and returns the first success. Every
// attempt decodes into a fresh value so a partial failure cannot leak into
// the fallback.
func Decode[T any](c *Codec, data []byte) (T, error) {
	var zero T
	attempts := make([]DecodeAttempt, 0, len(c.decoders))
	for _, d := range c.decoders {
		if len(data) == 0 {
			attempts = append(attempts, DecodeAttempt{Format: d.Format, Err: errors.New("empty blob")})
			continue
		}
		if Format(data[0]) != d.Format {
			attempts = append(attempts, DecodeAttempt{
				Format: d.Format,
				Err:    fmt.Errorf("format tag 0x%02x, want 0x%02x", data[0], byte(d.Format)),
			})
			continue
		}
		var v T
		if err := d.Decode(data[1:], &v); err != nil {
			attempts = append(attempts, DecodeAttempt{Format: d.Format, Err: err})
			continue
		}
		return v, nil
	}
	return zero, &RetrievalError{Attempts: attempts}
}

// Load reads and decodes the blob under key. A missing blob is reported as
// ErrNotFound, an unreadable one as *RetrievalError.
func Load[T any](ctx context.Context, s Store, c *Codec, key string) (T, error) {
	var zero T
	data, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	v, err := Decode[T](c, data)
	if err != nil {
		var re *RetrievalError
		if errors.As(err, &re) {
			re.Key = key
		}
		return zero, err
	}
	return v, nil
}

// Save encodes v and stores it under key.
func Save(ctx context.Context, s Store, c *Codec, key string, v any) error {
	data, err := c.Encode(v)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}
