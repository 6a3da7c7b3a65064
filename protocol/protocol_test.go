package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, m *Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, m.Encode(&buf))
	return buf.Bytes()
}

func TestEncodeIsDeterministic(t *testing.T) {
	a := encode(t, NewRequest(OpPut, 1, 2, 60, []byte("abc123"), []byte("hello")))
	b := encode(t, NewRequest(OpPut, 1, 2, 60, []byte("abc123"), []byte("hello")))
	assert.Equal(t, a, b)
	assert.Len(t, a, HeaderSize+len("abc123")+len("hello"))
}

func TestEncodeLayout(t *testing.T) {
	b := encode(t, NewRequest(OpGet, 7, 9, 30, []byte("ff"), nil))

	assert.Equal(t, byte(MagicReq), b[0])
	assert.Equal(t, byte(OpGet), b[1])
	assert.Equal(t, byte(0), b[2])
	assert.Equal(t, uint32(7), binary.BigEndian.Uint32(b[4:8]))
	assert.Equal(t, uint32(9), binary.BigEndian.Uint32(b[8:12]))
	assert.Equal(t, uint32(30), binary.BigEndian.Uint32(b[12:16]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(b[16:18]))
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(b[20:24]))
	assert.Equal(t, []byte("ff"), b[24:])
}

func TestRoundTripBinaryValues(t *testing.T) {
	values := [][]byte{
		{},
		[]byte("hello"),
		{0x00, 0xff, '\r', '\n', 0x00},
		bytes.Repeat([]byte{0xAB}, 70000),
	}
	for _, v := range values {
		in := NewRequest(OpPut, 1, 1, 0, []byte("abc123"), v)
		out, err := Decode(encode(t, in))
		require.NoError(t, err)
		assert.Equal(t, in.Header, out.Header)
		assert.Equal(t, []byte("abc123"), out.Key)
		assert.Equal(t, len(v), len(out.Value))
		assert.True(t, bytes.Equal(v, out.Value))
	}
}

func TestDecodeRejectsTruncatedFrames(t *testing.T) {
	full := encode(t, NewRequest(OpPut, 3, 4, 10, []byte("key"), []byte("value")))
	for i := 0; i < len(full); i++ {
		_, err := Decode(full[:i])
		assert.ErrorIs(t, err, ErrDecode, "prefix of length %d", i)
	}
}

func TestDecodeRejectsBadHeaders(t *testing.T) {
	valid := func() []byte {
		return encode(t, NewRequest(OpGet, 1, 1, 0, []byte("key"), nil))
	}

	b := valid()
	b[0] = 0x00
	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrDecode)

	b = valid()
	b[3] = 1
	_, err = Decode(b)
	assert.ErrorIs(t, err, ErrDecode)

	b = valid()
	binary.BigEndian.PutUint16(b[16:18], 10)
	_, err = Decode(b)
	assert.ErrorIs(t, err, ErrDecode)

	b = valid()
	binary.BigEndian.PutUint32(b[20:24], uint32(MaxBodySize)+1)
	_, err = Decode(b)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeNeverPanicsOnGarbage(t *testing.T) {
	garbage := [][]byte{
		nil,
		{0x4E},
		bytes.Repeat([]byte{0xFF}, HeaderSize),
		bytes.Repeat([]byte{0x4E}, 64),
	}
	for _, g := range garbage {
		assert.NotPanics(t, func() {
			_, err := Decode(g)
			assert.Error(t, err)
		})
	}
}

func TestReadReportsCleanEOF(t *testing.T) {
	var m Message
	err := m.Read(bytes.NewReader(nil))
	assert.True(t, errors.Is(err, io.EOF))
}

func TestWriteRejectsOversizedKey(t *testing.T) {
	m := NewRequest(OpGet, 0, 0, 0, make([]byte, MaxKeySize+1), nil)
	var buf bytes.Buffer
	err := m.Write(&buf, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Zero(t, buf.Len())
}

func TestCheckStatus(t *testing.T) {
	req := NewRequest(OpGet, 0, 0, 0, []byte("k"), nil)
	assert.NoError(t, CheckStatus(req.Reply([]byte("v"))))
	assert.ErrorIs(t, CheckStatus(req.Fail(StatusNotFound, nil)), ErrNotFound)
	assert.ErrorIs(t, CheckStatus(req.Fail(StatusInternalError, "boom")), ErrInternal)
	assert.ErrorIs(t, CheckStatus(req.Fail(StatusUnknownOp, nil)), ErrUnknownOp)
	assert.ErrorIs(t, CheckStatus(req.Fail(StatusBadRequest, errors.New("x"))), ErrBadRequest)
	assert.ErrorIs(t, CheckStatus(req.Fail(StatusCode(99), nil)), ErrDecode)
}

func TestFailCarriesMessage(t *testing.T) {
	req := NewRequest(OpPut, 5, 6, 0, []byte("k"), []byte("v"))
	resp := req.Fail(StatusInternalError, errors.New("disk full"))
	assert.Equal(t, MagicRes, resp.Magic)
	assert.Equal(t, OpPut, resp.Op)
	assert.Equal(t, uint32(5), resp.Level)
	assert.Equal(t, []byte("disk full"), resp.Value)
}

func TestBufPoolResets(t *testing.T) {
	p := NewBufPool()
	b := p.Get()
	b.WriteString("dirty")
	p.Put(b)
	assert.Zero(t, p.Get().Len())
}

func TestBufPoolDropsOversizedBuffers(t *testing.T) {
	p := NewBufPool()
	b := p.Get()
	b.Write(make([]byte, maxPooledBuffer+1))
	p.Put(b)
	assert.NotSame(t, b, p.Get())
}
