package wire

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

const (
	readChunk = 4096
	// maxFDsPerRead mirrors the compositor side limit on descriptors per
	// message batch.
	maxFDsPerRead = 28
)

// Conn is a Wayland socket. Writes are buffered until Flush; reads block
// until at least one complete message is available.
type Conn struct {
	uc *net.UnixConn

	in   []byte
	rbuf []byte
	oob  []byte
	fds  fdQueue

	out    []byte
	outFDs []int
}

// Dial connects to the compositor socket at path.
func Dial(path string) (*Conn, error) {
	uc, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return newConn(uc), nil
}

// FromFD wraps an already connected socket, as handed over through
// WAYLAND_SOCKET.
func FromFD(fd int) (*Conn, error) {
	f := os.NewFile(uintptr(fd), "wayland-socket")
	if f == nil {
		return nil, fmt.Errorf("invalid socket fd %d", fd)
	}
	defer f.Close()

	c, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("wrap socket fd %d: %w", fd, err)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("fd %d is not a unix socket", fd)
	}
	return newConn(uc), nil
}

func newConn(uc *net.UnixConn) *Conn {
	return &Conn{
		uc:   uc,
		rbuf: make([]byte, readChunk),
		oob:  make([]byte, unix.CmsgSpace(maxFDsPerRead*4)),
	}
}

// Enqueue buffers a request for the next Flush.
func (c *Conn) Enqueue(r *Request) error {
	b, err := r.Bytes()
	if err != nil {
		return err
	}
	c.out = append(c.out, b...)
	c.outFDs = append(c.outFDs, r.FDs()...)
	return nil
}

// Pending reports the number of buffered outgoing bytes.
func (c *Conn) Pending() int {
	return len(c.out)
}

// Flush writes all buffered requests. Descriptors ride along with the first
// chunk written.
func (c *Conn) Flush() error {
	if len(c.out) == 0 {
		return nil
	}
	var oob []byte
	if len(c.outFDs) > 0 {
		oob = unix.UnixRights(c.outFDs...)
	}
	for len(c.out) > 0 {
		n, _, err := c.uc.WriteMsgUnix(c.out, oob, nil)
		if err != nil {
			return fmt.Errorf("write to compositor: %w", err)
		}
		c.out = c.out[n:]
		oob = nil
	}
	c.out = c.out[:0]
	c.outFDs = c.outFDs[:0]
	return nil
}

// ReadMessages blocks until at least one complete message has arrived and
// returns every complete message currently buffered.
func (c *Conn) ReadMessages() ([]*Message, error) {
	for {
		msgs, rest, err := parse(c.in, &c.fds)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			c.in = append(c.in[:0], rest...)
			return msgs, nil
		}

		n, oobn, _, _, err := c.uc.ReadMsgUnix(c.rbuf, c.oob)
		if err != nil {
			return nil, fmt.Errorf("read from compositor: %w", err)
		}
		if n == 0 && oobn == 0 {
			return nil, fmt.Errorf("read from compositor: %w", net.ErrClosed)
		}
		if oobn > 0 {
			if err := c.collectFDs(c.oob[:oobn]); err != nil {
				return nil, err
			}
		}
		c.in = append(c.in, c.rbuf[:n]...)
	}
}

func (c *Conn) collectFDs(oob []byte) error {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("parse control message: %w", err)
	}
	for i := range scms {
		fds, err := unix.ParseUnixRights(&scms[i])
		if err != nil {
			continue
		}
		c.fds.push(fds...)
	}
	return nil
}

// Close shuts the socket and any descriptors received but never consumed.
func (c *Conn) Close() error {
	for {
		fd, ok := c.fds.pop()
		if !ok {
			break
		}
		unix.Close(fd)
	}
	err := c.uc.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
