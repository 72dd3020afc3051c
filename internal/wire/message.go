// Package wire implements the Wayland wire format: message framing, argument
// encoding and the unix socket transport that carries file descriptors.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// HeaderSize is the size of a message header in bytes.
const HeaderSize = 8

// MaxMessageSize is the largest message the protocol can frame.
const MaxMessageSize = 0xffff

var (
	// ErrShortMessage is returned when a message body ends before all of its
	// arguments have been read.
	ErrShortMessage = errors.New("wire: message too short")

	// ErrNoFD is returned when a message expects a file descriptor that was
	// not received alongside it.
	ErrNoFD = errors.New("wire: no file descriptor available")
)

var order = binary.NativeEndian

// Request is an outgoing message under construction. Events in tests are
// built the same way since the framing is symmetric.
type Request struct {
	opcode uint16
	buf    []byte
	fds    []int
}

// NewRequest starts a message addressed to objectID.
func NewRequest(objectID uint32, opcode uint16) *Request {
	r := &Request{
		opcode: opcode,
		buf:    make([]byte, HeaderSize, 64),
	}
	order.PutUint32(r.buf[0:], objectID)
	return r
}

// PutUint appends an unsigned 32-bit argument (uint, object, new_id).
func (r *Request) PutUint(v uint32) *Request {
	r.buf = order.AppendUint32(r.buf, v)
	return r
}

// PutInt appends a signed 32-bit argument.
func (r *Request) PutInt(v int32) *Request {
	return r.PutUint(uint32(v))
}

// PutString appends a NUL-terminated, padded string argument.
func (r *Request) PutString(s string) *Request {
	n := len(s) + 1
	r.buf = order.AppendUint32(r.buf, uint32(n))
	r.buf = append(r.buf, s...)
	r.buf = append(r.buf, 0)
	r.pad(n)
	return r
}

// PutArray appends a length-prefixed, padded byte array argument.
func (r *Request) PutArray(b []byte) *Request {
	r.buf = order.AppendUint32(r.buf, uint32(len(b)))
	r.buf = append(r.buf, b...)
	r.pad(len(b))
	return r
}

// PutFD attaches a file descriptor. It travels out of band.
func (r *Request) PutFD(fd int) *Request {
	r.fds = append(r.fds, fd)
	return r
}

func (r *Request) pad(n int) {
	for n%4 != 0 {
		r.buf = append(r.buf, 0)
		n++
	}
}

// Bytes finalizes the header and returns the encoded message.
func (r *Request) Bytes() ([]byte, error) {
	if len(r.buf) > MaxMessageSize {
		return nil, fmt.Errorf("wire: message of %d bytes exceeds frame limit", len(r.buf))
	}
	order.PutUint32(r.buf[4:], uint32(len(r.buf))<<16|uint32(r.opcode))
	return r.buf, nil
}

// FDs returns the descriptors attached to the message.
func (r *Request) FDs() []int {
	return r.fds
}

// Message is a decoded incoming message. Arguments are read in order.
type Message struct {
	Sender uint32
	Opcode uint16

	body []byte
	off  int
	fds  *fdQueue
}

// fdQueue holds received descriptors in arrival order. Close may drain it
// while the reading goroutine is still pushing.
type fdQueue struct {
	mu sync.Mutex
	q  []int
}

func (f *fdQueue) push(fds ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.q = append(f.q, fds...)
}

func (f *fdQueue) pop() (int, bool) {
	if f == nil {
		return -1, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.q) == 0 {
		return -1, false
	}
	fd := f.q[0]
	f.q = f.q[1:]
	return fd, true
}

// Len reports the size of the body in bytes.
func (m *Message) Len() int {
	return len(m.body)
}

// Uint reads an unsigned 32-bit argument.
func (m *Message) Uint() (uint32, error) {
	if m.off+4 > len(m.body) {
		return 0, ErrShortMessage
	}
	v := order.Uint32(m.body[m.off:])
	m.off += 4
	return v, nil
}

// Int reads a signed 32-bit argument.
func (m *Message) Int() (int32, error) {
	v, err := m.Uint()
	return int32(v), err
}

// Str reads a string argument. A zero length denotes a null string, which is
// returned as "".
func (m *Message) Str() (string, error) {
	b, err := m.Array()
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", nil
	}
	if b[len(b)-1] != 0 {
		return "", fmt.Errorf("wire: string argument is not NUL-terminated")
	}
	return string(b[:len(b)-1]), nil
}

// Array reads a byte array argument. The returned slice aliases the message.
func (m *Message) Array() ([]byte, error) {
	n, err := m.Uint()
	if err != nil {
		return nil, err
	}
	size := int(n)
	padded := (size + 3) &^ 3
	if size < 0 || m.off+padded > len(m.body) {
		return nil, ErrShortMessage
	}
	b := m.body[m.off : m.off+size]
	m.off += padded
	return b, nil
}

// FD takes the next file descriptor received on the connection.
func (m *Message) FD() (int, error) {
	fd, ok := m.fds.pop()
	if !ok {
		return -1, ErrNoFD
	}
	return fd, nil
}

// Parse splits buf into complete messages. Bytes belonging to a trailing
// partial message are returned as rest.
func Parse(buf []byte) (msgs []*Message, rest []byte, err error) {
	return parse(buf, nil)
}

func parse(buf []byte, fds *fdQueue) ([]*Message, []byte, error) {
	var msgs []*Message
	for len(buf) >= HeaderSize {
		sender := order.Uint32(buf[0:])
		word := order.Uint32(buf[4:])
		size := int(word >> 16)
		if size < HeaderSize {
			return msgs, nil, fmt.Errorf("wire: invalid message size %d from object %d", size, sender)
		}
		if len(buf) < size {
			break
		}
		body := make([]byte, size-HeaderSize)
		copy(body, buf[HeaderSize:size])
		msgs = append(msgs, &Message{
			Sender: sender,
			Opcode: uint16(word & 0xffff),
			body:   body,
			fds:    fds,
		})
		buf = buf[size:]
	}
	return msgs, buf, nil
}
