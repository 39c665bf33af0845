package smpp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gosmpp "github.com/M2MGateway/go-smpp"
	"github.com/M2MGateway/go-smpp/coding/gsm7bit"
	"github.com/M2MGateway/go-smpp/pdu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tunes567/Quantum-Hub/smpp/coding"
)

// trackedConn counts Close calls on the ESME end of the pipe.
type trackedConn struct {
	net.Conn
	closes atomic.Int32
}

func (c *trackedConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

// smsc is a go-smpp peer that binds, accepts submits and optionally answers unbind.
type smsc struct {
	session      *gosmpp.Session
	answerUnbind bool

	mu      sync.Mutex
	submits []*pdu.SubmitSM
	unbinds int
}

func startSMSC(t *testing.T, answerUnbind bool) (*smsc, *trackedConn) {
	t.Helper()
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = server.Close()
	})

	peer := &smsc{session: gosmpp.NewSession(ctx, server), answerUnbind: answerUnbind}
	go peer.serve(ctx)
	return peer, &trackedConn{Conn: client}
}

func (p *smsc) serve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case packet := <-p.session.PDU():
			p.handle(packet)
		}
	}
}

func (p *smsc) handle(packet any) {
	switch req := packet.(type) {
	case *pdu.SubmitSM:
		p.mu.Lock()
		p.submits = append(p.submits, req)
		n := len(p.submits)
		p.mu.Unlock()
		resp := req.Resp().(*pdu.SubmitSMResp)
		resp.MessageID = fmt.Sprintf("msg-%d", n)
		_ = p.session.Send(resp)
	case *pdu.Unbind:
		p.mu.Lock()
		p.unbinds++
		p.mu.Unlock()
		if p.answerUnbind {
			_ = p.session.Send(req.Resp())
		}
	case pdu.Responsable:
		_ = p.session.Send(req.Resp())
	}
}

func (p *smsc) received() []*pdu.SubmitSM {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*pdu.SubmitSM(nil), p.submits...)
}

func (p *smsc) unbindCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unbinds
}

func newPipeSession(t *testing.T, conn net.Conn, mutate func(*Config)) *Session {
	t.Helper()
	s, _ := newTestSession(t, nil, func(c *Config) {
		c.ExchangeTimeout = time.Second
		c.Dial = func(context.Context, string) (Conn, error) {
			return NewConn(conn), nil
		}
		if mutate != nil {
			mutate(c)
		}
	})
	return s
}

func bindPipeSession(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Bind(ctx))
}

func TestSubmitFullLengthGSM7OverWire(t *testing.T) {
	peer, conn := startSMSC(t, true)
	s := newPipeSession(t, conn, nil)
	bindPipeSession(t, s)

	content := strings.Repeat("a", 150)
	parts, err := coding.Encode(content)
	require.NoError(t, err)
	require.Len(t, parts, 1)

	id, err := s.Submit(context.Background(), "5215512345678", parts)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	submits := peer.received()
	require.Len(t, submits, 1)
	assert.False(t, submits[0].ESMClass.UDHIndicator)
	assert.LessOrEqual(t, len(submits[0].Message.Message), pdu.MaxShortMessageLength)

	text, err := gsm7bit.Packed.NewDecoder().Bytes(submits[0].Message.Message)
	require.NoError(t, err)
	assert.Equal(t, content, string(text))

	s.Unbind(context.Background())
	s.Close()
	assert.EqualValues(t, 1, conn.closes.Load())
}

func TestSubmitMultipartCarriesConcatHeaderOverWire(t *testing.T) {
	for name, content := range map[string]string{
		"gsm7": strings.Repeat("b", 300),
		"ucs2": strings.Repeat("Ж", 100),
	} {
		t.Run(name, func(t *testing.T) {
			peer, conn := startSMSC(t, true)
			s := newPipeSession(t, conn, nil)
			bindPipeSession(t, s)

			parts, err := coding.Encode(content)
			require.NoError(t, err)
			require.Len(t, parts, 2)

			id, err := s.Submit(context.Background(), "5215512345678", parts)
			require.NoError(t, err)
			assert.Equal(t, "msg-1", id)

			submits := peer.received()
			require.Len(t, submits, 2)
			for i, submit := range submits {
				assert.True(t, submit.ESMClass.UDHIndicator)
				header := submit.Message.UDHeader.ConcatenatedHeader()
				require.NotNil(t, header, "part %d has no concatenation header", i+1)
				assert.EqualValues(t, parts[i].Concat.Reference, header.Reference)
				assert.EqualValues(t, 2, header.TotalParts)
				assert.EqualValues(t, i+1, header.Sequence)
				assert.Equal(t, parts[i].Payload, submit.Message.Message)
				assert.EqualValues(t, parts[i].DataCoding, submit.Message.DataCoding)
			}

			s.Unbind(context.Background())
			s.Close()
		})
	}
}

func TestShortMessageWireLayout(t *testing.T) {
	parts, err := coding.Encode(strings.Repeat("Ж", 100))
	require.NoError(t, err)
	part := parts[0]

	var buf bytes.Buffer
	_, err = pdu.Marshal(&buf, &pdu.SubmitSM{
		Header:   pdu.Header{Sequence: 1},
		ESMClass: pdu.ESMClass{UDHIndicator: true},
		Message:  shortMessage(part),
	})
	require.NoError(t, err)

	// sm_length, UDHL, IEI, IEDL, reference, total, sequence, body
	want := []byte{byte(6 + len(part.Payload)), 0x05, 0x00, 0x03, part.Concat.Reference, 0x02, 0x01}
	want = append(want, part.Payload...)
	assert.True(t, bytes.HasSuffix(buf.Bytes(), want), "% X", buf.Bytes())
}

func TestCloseReleasesSocketWhenUnbindIsIgnored(t *testing.T) {
	peer, conn := startSMSC(t, false)
	s := newPipeSession(t, conn, func(c *Config) { c.ExchangeTimeout = 50 * time.Millisecond })
	bindPipeSession(t, s)

	s.Unbind(context.Background())
	require.Eventually(t, func() bool { return peer.unbindCount() == 1 }, time.Second, 5*time.Millisecond)

	s.Close()
	assert.Equal(t, Disconnected, s.State())
	assert.EqualValues(t, 1, conn.closes.Load())
	assert.Equal(t, 1, peer.unbindCount(), "close does not unbind again")

	_, err := conn.Write([]byte{0})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestDeliverSMWithHeaderKeepsFullTextOverWire(t *testing.T) {
	peer, conn := startSMSC(t, true)
	events := make(chan DeliveryEvent, 1)
	s := newPipeSession(t, conn, func(c *Config) { c.Events = events })
	bindPipeSession(t, s)
	defer s.Close()

	body := "This is an inbound reply long enough to matter"
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := peer.session.Submit(ctx, &pdu.DeliverSM{
		SourceAddr: pdu.Address{TON: 1, NPI: 1, No: "5215512345678"},
		DestAddr:   pdu.Address{No: "SMSHub"},
		ESMClass:   pdu.ESMClass{UDHIndicator: true},
		Message: pdu.ShortMessage{
			UDHeader: pdu.UserDataHeader{0x00: {0x2A, 0x02, 0x01}},
			Message:  []byte(body),
		},
	})
	require.NoError(t, err)
	assert.IsType(t, &pdu.DeliverSMResp{}, resp)

	select {
	case event := <-events:
		assert.Equal(t, body, event.Text)
		require.NotNil(t, event.Concat)
		assert.EqualValues(t, 0x2A, event.Concat.Reference)
		assert.EqualValues(t, 2, event.Concat.Total)
		assert.EqualValues(t, 1, event.Concat.Sequence)
		assert.Nil(t, event.Receipt)
	case <-time.After(time.Second):
		t.Fatal("no delivery event")
	}
}
