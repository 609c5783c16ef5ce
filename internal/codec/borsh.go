package codec

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// writer keeps the first encoder error; later writes become no-ops.
type writer struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func newWriter(d Discriminator) *writer {
	w := &writer{}
	w.enc = bin.NewBorshEncoder(&w.buf)
	w.raw(d[:])
	return w
}

func (w *writer) raw(b []byte) {
	if w.err == nil {
		w.err = w.enc.WriteBytes(b, false)
	}
}

func (w *writer) u8(v uint8) {
	if w.err == nil {
		w.err = w.enc.WriteUint8(v)
	}
}

func (w *writer) boolean(v bool) {
	if w.err == nil {
		w.err = w.enc.WriteBool(v)
	}
}

func (w *writer) u32(v uint32) {
	if w.err == nil {
		w.err = w.enc.WriteUint32(v, bin.LE)
	}
}

func (w *writer) u64(v uint64) {
	if w.err == nil {
		w.err = w.enc.WriteUint64(v, bin.LE)
	}
}

func (w *writer) i64(v int64) {
	if w.err == nil {
		w.err = w.enc.WriteInt64(v, bin.LE)
	}
}

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.raw([]byte(s))
}

func (w *writer) pubkey(pk solana.PublicKey) { w.raw(pk[:]) }

func (w *writer) optPubkey(pk *solana.PublicKey) {
	if pk == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.pubkey(*pk)
}

func (w *writer) optString(s *string) {
	if s == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.str(*s)
}

func (w *writer) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

// reader checks the remaining length before every read so a short buffer
// surfaces as ErrTruncatedAccount instead of an out-of-range read.
type reader struct {
	dec *bin.Decoder
	err error
}

func newReader(data []byte) *reader {
	return &reader{dec: bin.NewBorshDecoder(data)}
}

func (r *reader) need(n uint64, field string) bool {
	if r.err != nil {
		return false
	}
	if uint64(r.dec.Remaining()) < n {
		r.err = fmt.Errorf("%w: %s needs %d bytes, %d remain", ErrTruncatedAccount, field, n, r.dec.Remaining())
		return false
	}
	return true
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) raw(n int, field string) []byte {
	if !r.need(uint64(n), field) {
		return nil
	}
	b, err := r.dec.ReadNBytes(n)
	if err != nil {
		r.fail(fmt.Errorf("%w: %s: %v", ErrTruncatedAccount, field, err))
		return nil
	}
	return b
}

func (r *reader) discriminator(want Discriminator) {
	got := r.raw(DiscriminatorSize, "discriminator")
	if r.err != nil {
		return
	}
	if !bytes.Equal(got, want[:]) {
		r.fail(fmt.Errorf("%w: got %x want %s", ErrUnknownDiscriminator, got, want))
	}
}

func (r *reader) u8(field string) uint8 {
	if !r.need(1, field) {
		return 0
	}
	v, err := r.dec.ReadUint8()
	r.check(err, field)
	return v
}

// flag reads an option or bool byte, which must be 0 or 1.
func (r *reader) flag(field string) bool {
	b := r.u8(field)
	if r.err != nil {
		return false
	}
	if b > 1 {
		r.fail(fmt.Errorf("%w: %s flag is %d", ErrMalformedAccount, field, b))
		return false
	}
	return b == 1
}

func (r *reader) u32(field string) uint32 {
	if !r.need(4, field) {
		return 0
	}
	v, err := r.dec.ReadUint32(bin.LE)
	r.check(err, field)
	return v
}

func (r *reader) u64(field string) uint64 {
	if !r.need(8, field) {
		return 0
	}
	v, err := r.dec.ReadUint64(bin.LE)
	r.check(err, field)
	return v
}

func (r *reader) i64(field string) int64 {
	if !r.need(8, field) {
		return 0
	}
	v, err := r.dec.ReadInt64(bin.LE)
	r.check(err, field)
	return v
}

func (r *reader) str(field string) string {
	n := r.u32(field + " length")
	if r.err != nil {
		return ""
	}
	return string(r.raw(int(n), field))
}

func (r *reader) pubkey(field string) solana.PublicKey {
	b := r.raw(solana.PublicKeyLength, field)
	if r.err != nil {
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(b)
}

func (r *reader) optPubkey(field string) *solana.PublicKey {
	if !r.flag(field) {
		return nil
	}
	pk := r.pubkey(field)
	if r.err != nil {
		return nil
	}
	return &pk
}

func (r *reader) optString(field string) *string {
	if !r.flag(field) {
		return nil
	}
	s := r.str(field)
	if r.err != nil {
		return nil
	}
	return &s
}

func (r *reader) pubkeys(field string) []solana.PublicKey {
	n := r.u32(field + " length")
	if !r.need(uint64(n)*solana.PublicKeyLength, field) {
		return nil
	}
	out := make([]solana.PublicKey, n)
	for i := range out {
		out[i] = r.pubkey(field)
	}
	return out
}

func (r *reader) check(err error, field string) {
	if err != nil {
		r.fail(fmt.Errorf("%w: %s: %v", ErrTruncatedAccount, field, err))
	}
}
