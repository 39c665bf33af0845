package smpp

import (
	"context"
	"net"
	"sync"

	gosmpp "github.com/M2MGateway/go-smpp"
	"github.com/M2MGateway/go-smpp/pdu"
)

// Conn is the PDU transport a Session drives.
type Conn interface {
	// Submit sends a request and waits for the matching response.
	Submit(ctx context.Context, packet pdu.Responsable) (any, error)
	// Send writes a PDU without waiting, used for responses to SMSC requests.
	Send(packet any) error
	// PDU delivers requests initiated by the SMSC.
	PDU() <-chan any
	// Close releases the socket. It does not exchange any PDU.
	Close(ctx context.Context) error
}

// Dialer opens a Conn to address. The context bounds the TCP connect.
type Dialer func(ctx context.Context, address string) (Conn, error)

// DialTCP connects over plain TCP and wraps the socket with NewConn.
func DialTCP(ctx context.Context, address string) (Conn, error) {
	var d net.Dialer
	parent, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewConn(parent), nil
}

// socketConn runs a go-smpp session over a socket it owns. Teardown goes
// straight to the socket: gosmpp.Session.Close sends its own unbind and skips
// closing the socket when that exchange fails.
type socketConn struct {
	*gosmpp.Session

	parent net.Conn
	stop   context.CancelFunc
	once   sync.Once
}

// NewConn starts a go-smpp session over an established connection.
func NewConn(parent net.Conn) Conn {
	watchCtx, stop := context.WithCancel(context.Background())
	return &socketConn{
		Session: gosmpp.NewSession(watchCtx, parent),
		parent:  parent,
		stop:    stop,
	}
}

func (c *socketConn) Close(context.Context) error {
	err := net.ErrClosed
	c.once.Do(func() {
		// the reader goroutine exits on the next loop once its context is done
		c.stop()
		err = c.parent.Close()
	})
	return err
}
