package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var ErrShortPayload = errors.New("binary: short payload")

// Writer builds request payloads out of 4-byte integers and length-prefixed
// strings.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) WriteInt(v int32) *Writer {
	return w.WriteUint(uint32(v))
}

func (w *Writer) WriteUint(v uint32) *Writer {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
	return w
}

func (w *Writer) WriteStr(s string) *Writer {
	w.WriteUint(uint32(len(s)))
	w.buf.WriteString(s)
	return w
}

func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Reader is the decoding side of Writer. The first failed read sticks: later
// reads return zero values and Err reports it.
type Reader struct {
	data []byte
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) ReadUint() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.data) < 4 {
		r.err = ErrShortPayload
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data)
	r.data = r.data[4:]
	return v
}

func (r *Reader) ReadInt() int32 {
	return int32(r.ReadUint())
}

func (r *Reader) ReadStr() string {
	n := r.ReadUint()
	if r.err != nil {
		return ""
	}
	if uint32(len(r.data)) < n {
		r.err = ErrShortPayload
		return ""
	}
	s := string(r.data[:n])
	r.data = r.data[n:]
	return s
}

func (r *Reader) Err() error {
	return r.err
}
