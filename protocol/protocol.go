// Copyright 2018 Burak Sezer
// Modifications copyright 2026 The nomos-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package protocol implements the Nomos Storage frame format.
//
// Every frame is a fixed 24 byte big-endian header followed by a body holding
// the key and then the value. The header carries the body length explicitly so
// values are binary-safe.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic Codes
type MagicCode uint8

const (
	MagicReq MagicCode = 0x4E
	MagicRes MagicCode = 0x4F
)

type OpCode uint8

// ops
const (
	OpNoop OpCode = OpCode(iota)
	OpGet
	OpPut
	OpDelete
)

func (o OpCode) String() string {
	switch o {
	case OpNoop:
		return "noop"
	case OpGet:
		return "get"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

type StatusCode uint8

// status codes
const (
	StatusOK = StatusCode(iota)
	StatusNotFound
	StatusInternalError
	StatusUnknownOp
	StatusBadRequest
)

var (
	ErrDecode     = errors.New("protocol: malformed frame")
	ErrNotFound   = errors.New("protocol: key not found")
	ErrInternal   = errors.New("protocol: internal server error")
	ErrUnknownOp  = errors.New("protocol: unknown operation")
	ErrBadRequest = errors.New("protocol: bad request")
)

const (
	HeaderSize  int = 24
	MaxKeySize  int = 1<<16 - 1
	MaxBodySize int = 32 << 20
)

// total length    // 24
type Header struct {
	Magic     MagicCode  // 1
	Op        OpCode     // 1
	Status    StatusCode // 1
	Reserved  uint8      // 1
	Level     uint32     // 4
	SubLevel  uint32     // 4
	Expire    uint32     // 4
	KeyLen    uint16     // 2
	Reserved2 uint16     // 2
	BodyLen   uint32     // 4
}

type Message struct {
	Header        // [0..23]
	Key    []byte // [24..(n-1)] length in Header
	Value  []byte // [n..y] BodyLen - KeyLen
}

// NewRequest builds a request frame. Lengths are filled in by Write.
func NewRequest(op OpCode, level, subLevel, expire uint32, key, value []byte) *Message {
	return &Message{
		Header: Header{
			Magic:    MagicReq,
			Op:       op,
			Level:    level,
			SubLevel: subLevel,
			Expire:   expire,
		},
		Key:   key,
		Value: value,
	}
}

func (m *Message) seal() error {
	if len(m.Key) > MaxKeySize {
		return fmt.Errorf("%w: key length %d", ErrBadRequest, len(m.Key))
	}
	if len(m.Key)+len(m.Value) > MaxBodySize {
		return fmt.Errorf("%w: body length %d", ErrBadRequest, len(m.Key)+len(m.Value))
	}
	m.Reserved = 0
	m.Reserved2 = 0
	m.KeyLen = uint16(len(m.Key))
	m.BodyLen = uint32(len(m.Key) + len(m.Value))
	return nil
}

// Encode appends the frame to buf. The same message always produces the same bytes.
func (m *Message) Encode(buf *bytes.Buffer) error {
	if err := m.seal(); err != nil {
		return err
	}
	err := binary.Write(buf, binary.BigEndian, m.Header)
	if err != nil {
		return err
	}
	_, err = buf.Write(m.Key)
	if err != nil {
		return err
	}
	_, err = buf.Write(m.Value)
	return err
}

// Write encodes the frame into buf and flushes it to w in a single write.
func (m *Message) Write(w io.Writer, buf *bytes.Buffer) error {
	if err := m.Encode(buf); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

// Read decodes exactly one frame from r. Malformed input yields an error
// wrapping ErrDecode; I/O failures are returned unwrapped.
func (m *Message) Read(r io.Reader) error {
	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}
	if err := m.decodeHeader(b); err != nil {
		return err
	}

	body := make([]byte, m.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: truncated body", ErrDecode)
		}
		return err
	}
	m.Key = body[:m.KeyLen:m.KeyLen]
	m.Value = body[m.KeyLen:]
	return nil
}

// Decode parses a complete frame held in b.
func Decode(b []byte) (*Message, error) {
	var m Message
	err := m.Read(bytes.NewReader(b))
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: truncated frame", ErrDecode)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Message) decodeHeader(b []byte) error {
	err := binary.Read(bytes.NewReader(b), binary.BigEndian, &m.Header)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if m.Magic != MagicReq && m.Magic != MagicRes {
		return fmt.Errorf("%w: invalid magic 0x%02x", ErrDecode, uint8(m.Magic))
	}
	if m.Reserved != 0 || m.Reserved2 != 0 {
		return fmt.Errorf("%w: reserved bits set", ErrDecode)
	}
	if int64(m.BodyLen) > int64(MaxBodySize) {
		return fmt.Errorf("%w: body length %d exceeds limit", ErrDecode, m.BodyLen)
	}
	if uint32(m.KeyLen) > m.BodyLen {
		return fmt.Errorf("%w: key length %d exceeds body length %d", ErrDecode, m.KeyLen, m.BodyLen)
	}
	return nil
}

// CheckStatus maps a response status to an error.
func CheckStatus(resp *Message) error {
	switch resp.Status {
	case StatusOK:
		return nil
	case StatusNotFound:
		return ErrNotFound
	case StatusInternalError:
		return ErrInternal
	case StatusUnknownOp:
		return ErrUnknownOp
	case StatusBadRequest:
		return ErrBadRequest
	}
	return fmt.Errorf("%w: unknown status code %d", ErrDecode, resp.Status)
}

// Reply builds a successful response to m carrying value.
func (m *Message) Reply(value []byte) *Message {
	var n Message
	n.Magic = MagicRes
	n.Op = m.Op
	n.Status = StatusOK
	n.Level = m.Level
	n.SubLevel = m.SubLevel
	n.Key = m.Key
	n.Value = value
	return &n
}

// Fail builds a response to m with the given status. err, if any, becomes the
// response value so the client can log it.
func (m *Message) Fail(status StatusCode, err interface{}) *Message {
	var n Message
	switch e := err.(type) {
	case string:
		n.Value = []byte(e)
	case error:
		n.Value = []byte(e.Error())
	}
	n.Magic = MagicRes
	n.Op = m.Op
	n.Status = status
	n.Level = m.Level
	n.SubLevel = m.SubLevel
	n.Key = m.Key
	return &n
}
