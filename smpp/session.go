package smpp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/M2MGateway/go-smpp/pdu"
	smppcoding "github.com/M2MGateway/go-smpp/coding"
	"github.com/sirupsen/logrus"

	"github.com/Tunes567/Quantum-Hub/smpp/coding"
)

const (
	interfaceVersion = 0x34

	// source: alphanumeric sender ID, destination: international ISDN.
	sourceTON = 0x05
	sourceNPI = 0x00
	destTON   = 0x01
	destNPI   = 0x01
)

var DefaultSystemTypes = []string{"", "SMPP", "WWW"}

// State of an SMPP client session.
type State int32

const (
	Disconnected State = iota
	TCPConnected
	Bound
	Unbinding
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case TCPConnected:
		return "tcp_connected"
	case Bound:
		return "bound"
	case Unbinding:
		return "unbinding"
	}
	return "unknown"
}

// Credentials identify the ESME towards one SMSC.
type Credentials struct {
	Host     string
	Port     int
	SystemID string
	Password string
}

// NewCredentials trims every field and rejects non-ASCII values.
func NewCredentials(host string, port int, systemID, password string) (Credentials, error) {
	c := Credentials{
		Host:     strings.TrimSpace(host),
		Port:     port,
		SystemID: strings.TrimSpace(systemID),
		Password: strings.TrimSpace(password),
	}
	for name, v := range map[string]string{"host": c.Host, "system_id": c.SystemID, "password": c.Password} {
		if !isASCII(v) {
			return Credentials{}, fmt.Errorf("smpp credentials: %s must be ASCII", name)
		}
	}
	if c.Host == "" {
		return Credentials{}, errors.New("smpp credentials: host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return Credentials{}, fmt.Errorf("smpp credentials: invalid port %d", c.Port)
	}
	return c, nil
}

func (c Credentials) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

type Config struct {
	Credentials Credentials
	// SystemTypes are tried in order during bind until one is accepted.
	SystemTypes     []string
	SourceAddr      string
	ProbeTimeout    time.Duration
	ExchangeTimeout time.Duration
	PartDelay       time.Duration
	// Events receives inbound deliver_sm notifications. Sends never block;
	// events are dropped when the channel is full.
	Events chan<- DeliveryEvent
	Dial   Dialer
}

func (c *Config) setDefaults() {
	if c.SystemTypes == nil {
		c.SystemTypes = DefaultSystemTypes
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = 10 * time.Second
	}
	if c.PartDelay < 0 {
		c.PartDelay = 0
	}
	if c.Dial == nil {
		c.Dial = DialTCP
	}
}

// Session is a single-use ESME transceiver session. It is not safe for
// concurrent sends: build one per dispatch and Close it afterwards.
type Session struct {
	cfg    Config
	logger *logrus.Entry

	mu     sync.Mutex
	state  State
	conn   Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(cfg Config, logger *logrus.Entry) *Session {
	cfg.setDefaults()
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		cfg: cfg,
		logger: logger.WithFields(logrus.Fields{
			"smsc":     cfg.Credentials.Address(),
			"systemID": cfg.Credentials.SystemID,
		}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Connect opens the transport. The dial is bounded by the probe timeout so an
// unreachable SMSC fails fast instead of hanging the handshake.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Disconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("smpp: connect called in state %s", state)
	}
	s.mu.Unlock()

	addr := s.cfg.Credentials.Address()
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	conn, err := s.cfg.Dial(probeCtx, addr)
	if err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}

	readCtx, stop := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancel = stop
	s.done = make(chan struct{})
	s.state = TCPConnected
	s.mu.Unlock()

	go s.readLoop(readCtx, conn, s.done)

	s.logger.Debug("tcp connection established")
	return nil
}

// Bind negotiates a transceiver bind, trying each configured system type.
func (s *Session) Bind(ctx context.Context) error {
	if s.State() != TCPConnected {
		return ErrNotConnected
	}

	last := StatusUnknownError
	tried := make([]string, 0, len(s.cfg.SystemTypes))
	for _, systemType := range s.cfg.SystemTypes {
		tried = append(tried, systemType)
		resp, err := s.exchange(ctx, &pdu.BindTransceiver{
			SystemID:   s.cfg.Credentials.SystemID,
			Password:   s.cfg.Credentials.Password,
			SystemType: systemType,
			Version:    interfaceVersion,
		})
		status, err := responseStatus(resp, err)
		if err != nil {
			return &ConnectionError{Addr: s.cfg.Credentials.Address(), Err: fmt.Errorf("bind: %w", err)}
		}
		if status == StatusOK {
			s.setState(Bound)
			s.logger.WithField("systemType", systemType).Info("bound as transceiver")
			return nil
		}

		last = status
		s.logger.WithFields(logrus.Fields{
			"systemType": systemType,
			"status":     status.String(),
		}).Warn("bind rejected, trying next system type")
	}

	return &BindRejectedError{Status: last, SystemTypes: tried}
}

// Submit sends every part to destination in order and returns the message ID
// assigned to the first part. The first non-OK status aborts the rest.
func (s *Session) Submit(ctx context.Context, destination string, parts []coding.EncodedPart) (string, error) {
	if s.State() != Bound {
		return "", ErrNotBound
	}

	var messageID string
	for i, part := range parts {
		if i > 0 && s.cfg.PartDelay > 0 {
			select {
			case <-ctx.Done():
				return messageID, &SubmitFailedError{Part: i + 1, Total: len(parts), Err: ctx.Err()}
			case <-time.After(s.cfg.PartDelay):
			}
		}

		resp, err := s.exchange(ctx, &pdu.SubmitSM{
			SourceAddr:         pdu.Address{TON: sourceTON, NPI: sourceNPI, No: s.cfg.SourceAddr},
			DestAddr:           pdu.Address{TON: destTON, NPI: destNPI, No: destination},
			ESMClass:           pdu.ESMClass{UDHIndicator: part.UDHI()},
			RegisteredDelivery: pdu.RegisteredDelivery{MCDeliveryReceipt: 1},
			Message:            shortMessage(part),
		})
		status, err := responseStatus(resp, err)
		if err != nil {
			return messageID, &SubmitFailedError{Part: i + 1, Total: len(parts), Err: err}
		}
		if status != StatusOK {
			return messageID, &SubmitFailedError{Status: status, Part: i + 1, Total: len(parts)}
		}

		if r, ok := resp.(*pdu.SubmitSMResp); ok && i == 0 {
			messageID = r.MessageID
		}
		s.logger.WithFields(logrus.Fields{
			"destination": destination,
			"part":        i + 1,
			"total":       len(parts),
		}).Debug("part submitted")
	}
	return messageID, nil
}

// shortMessage hands the concatenation header to go-smpp, which writes UDHL and
// the element ahead of the body and counts both in sm_length.
func shortMessage(part coding.EncodedPart) pdu.ShortMessage {
	sm := pdu.ShortMessage{
		DataCoding: smppcoding.DataCoding(part.DataCoding),
		Message:    part.Payload,
	}
	if part.Concat != nil {
		sm.UDHeader = pdu.UserDataHeader{0x00: part.Concat.Element()}
	}
	return sm
}

// Unbind asks the SMSC to end the bind. Failures are logged only.
func (s *Session) Unbind(ctx context.Context) {
	if s.State() != Bound {
		return
	}
	s.setState(Unbinding)

	resp, err := s.exchange(ctx, &pdu.Unbind{})
	status, err := responseStatus(resp, err)
	if err != nil {
		s.logger.WithError(err).Warn("unbind failed")
		return
	}
	if status != StatusOK {
		s.logger.WithField("status", status.String()).Warn("unbind rejected")
	}
}

// Close releases the transport. It is safe to call in any state and more than once.
func (s *Session) Close() {
	s.mu.Lock()
	conn, cancel, done := s.conn, s.cancel, s.done
	s.conn, s.cancel, s.done = nil, nil, nil
	s.state = Disconnected
	s.mu.Unlock()

	if conn == nil {
		return
	}
	cancel()

	ctx, stop := context.WithTimeout(context.Background(), s.cfg.ExchangeTimeout)
	defer stop()
	if err := conn.Close(ctx); err != nil {
		s.logger.WithError(err).Warn("closing smpp connection failed")
	}
	<-done
	s.logger.Debug("disconnected")
}

func (s *Session) exchange(ctx context.Context, packet pdu.Responsable) (any, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	defer cancel()
	return conn.Submit(ctx, packet)
}

// readLoop answers SMSC-initiated requests until the context ends or the
// transport closes its PDU channel.
func (s *Session) readLoop(ctx context.Context, conn Conn, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-conn.PDU():
			if !ok {
				return
			}
			s.handlePDU(conn, packet)
		}
	}
}

func (s *Session) handlePDU(conn Conn, packet any) {
	switch p := packet.(type) {
	case *pdu.DeliverSM:
		if err := conn.Send(p.Resp()); err != nil {
			s.logger.WithError(err).Warn("sending deliver_sm_resp failed")
		}
		s.emit(newDeliveryEvent(s.cfg.Credentials.SystemID, p))
	case *pdu.Unbind:
		s.logger.Warn("smsc requested unbind")
		if err := conn.Send(p.Resp()); err != nil {
			s.logger.WithError(err).Warn("sending unbind_resp failed")
		}
	case pdu.Responsable:
		if err := conn.Send(p.Resp()); err != nil {
			s.logger.WithError(err).Warn("sending response failed")
		}
	default:
		s.logger.WithField("pdu", fmt.Sprintf("%T", packet)).Debug("ignoring unsolicited pdu")
	}
}

func (s *Session) emit(event DeliveryEvent) {
	entry := s.logger.WithFields(logrus.Fields{
		"source":      event.Source,
		"destination": event.Destination,
	})
	if event.Receipt != nil {
		entry = entry.WithFields(logrus.Fields{"messageID": event.Receipt.MessageID, "stat": event.Receipt.Stat})
		entry.Info("delivery receipt received")
	} else {
		entry.Info("inbound message received")
	}

	if s.cfg.Events == nil {
		return
	}
	select {
	case s.cfg.Events <- event:
	default:
		entry.Warn("delivery event channel full, dropping event")
	}
}

// responseStatus extracts command_status from a response or from an error
// carrying one.
func responseStatus(resp any, err error) (Status, error) {
	if err != nil {
		var status pdu.CommandStatus
		if errors.As(err, &status) {
			return Status(status), nil
		}
		return 0, err
	}
	switch r := resp.(type) {
	case *pdu.BindTransceiverResp:
		return Status(r.Header.CommandStatus), nil
	case *pdu.SubmitSMResp:
		return Status(r.Header.CommandStatus), nil
	case *pdu.UnbindResp:
		return Status(r.Header.CommandStatus), nil
	case *pdu.GenericNACK:
		return Status(r.Header.CommandStatus), nil
	case nil:
		return 0, ErrNoResponse
	}
	return 0, fmt.Errorf("smpp: unexpected response %T", resp)
}
