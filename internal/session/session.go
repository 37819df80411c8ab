package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kstaniek/go-lcam-driver/internal/ccd"
	"github.com/kstaniek/go-lcam-driver/internal/logging"
	"github.com/kstaniek/go-lcam-driver/internal/metrics"
	"github.com/kstaniek/go-lcam-driver/internal/transport"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	// ErrUnexpectedResponse marks a valid response of the wrong kind for the
	// operation in flight. The response is consumed and discarded.
	ErrUnexpectedResponse = errors.New("unexpected type of response")
	// ErrCRCMismatch is surfaced only under CRCEnforce.
	ErrCRCMismatch = errors.New("frame checksum mismatch")
	// ErrReceiveTimeout is surfaced when WithReceiveTimeout is set and a
	// response did not complete in time.
	ErrReceiveTimeout = errors.New("receive timed out")
)

// CRCPolicy decides what a pixel-frame checksum mismatch means. Some
// firmware revisions emit wrong checksums, so the default is to log and
// accept until the device behavior is characterized.
type CRCPolicy int

const (
	// CRCWarn logs and counts mismatches but delivers the frame.
	CRCWarn CRCPolicy = iota
	// CRCEnforce rejects mismatched frames with ErrCRCMismatch.
	CRCEnforce
	// CRCIgnore skips the comparison entirely.
	CRCIgnore
)

// readBufSize fits a full packet behind a worst-case misaligned prefix.
const readBufSize = 2 * ccd.MaxPacketSize

// Session drives the request/response protocol over a transport. It owns
// the transport and its read buffer; one session per device, one caller at
// a time. Methods block inside the transport; a receive ends on a transport
// error or the session's receive deadline, while idle reads are polled again.
type Session struct {
	tr  transport.Transport
	log *slog.Logger

	crcPolicy   CRCPolicy
	recvTimeout time.Duration

	buf [readBufSize]byte
	// top points one past the last buffered byte.
	top int
	// aligned records whether resync ran since the last fill.
	aligned bool
}

type Option func(*Session)

// WithLogger routes session diagnostics to l instead of the global logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCRCPolicy selects frame checksum handling.
func WithCRCPolicy(p CRCPolicy) Option {
	return func(s *Session) { s.crcPolicy = p }
}

// WithReceiveTimeout bounds one whole receive (all fills for one response).
// Zero means no bound: idle transport reads are polled until data arrives.
func WithReceiveTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.recvTimeout = d
		}
	}
}

// New creates a session over tr.
func New(tr transport.Transport, opts ...Option) *Session {
	s := &Session{tr: tr, log: logging.L()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) send(cmd ccd.Command) error {
	pkt := ccd.Encode(cmd)
	if err := s.tr.WriteAll(pkt[:]); err != nil {
		metrics.IncError(metrics.ErrSerialWrite)
		return fmt.Errorf("send command: %w", err)
	}
	metrics.IncCommandTx()
	return nil
}

// fill appends one transport read to the buffer. Idle (0, nil) reads are
// retried until data arrives or the deadline passes.
func (s *Session) fill(deadline time.Time) error {
	s.aligned = false
	for {
		if s.top == len(s.buf) {
			// Two packets' worth of bytes with no parse: drop the noise and
			// let the next fill realign.
			s.log.Warn("read_buffer_exhausted", "dropped", s.top)
			s.top = 0
		}
		n, err := s.tr.Read(s.buf[s.top:])
		if err != nil {
			metrics.IncError(metrics.ErrSerialRead)
			return fmt.Errorf("fill buffer: %w", err)
		}
		if n > 0 {
			s.top += n
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			metrics.IncError(metrics.ErrReceiveTimeout)
			return fmt.Errorf("%w after %s", ErrReceiveTimeout, s.recvTimeout)
		}
	}
}

// drain drops the first n buffered bytes, keeping the unconsumed tail.
func (s *Session) drain(n int) {
	copy(s.buf[:], s.buf[n:s.top])
	s.top -= n
}

// realign drops buffered bytes up to the first plausible packet start.
// It runs at most once per fill.
func (s *Session) realign() {
	s.aligned = true
	rest, _ := ccd.Align(s.buf[:s.top])
	skip := s.top - len(rest)
	if skip > 0 {
		metrics.IncResync()
		s.log.Debug("resync", "dropped_bytes", skip)
		s.drain(skip)
	}
}

// tryParse attempts one parse of the buffered bytes. It returns (nil, nil)
// when the buffer holds a valid but incomplete prefix.
func (s *Session) tryParse() (ccd.Response, error) {
	for {
		resp, rest, err := ccd.ParseResponse(s.buf[:s.top])
		if err == nil {
			s.drain(s.top - len(rest))
			metrics.IncResponseRx(resp.Kind().String())
			return resp, nil
		}
		if _, inc := ccd.Incomplete(err); inc {
			return nil, nil
		}
		if !s.aligned {
			s.realign()
			continue
		}
		metrics.IncMalformed()
		metrics.IncError(metrics.ErrDecode)
		return nil, fmt.Errorf("parse response: %w", err)
	}
}

func (s *Session) receive() (ccd.Response, error) {
	var deadline time.Time
	if s.recvTimeout > 0 {
		deadline = time.Now().Add(s.recvTimeout)
	}
	for {
		if err := s.fill(deadline); err != nil {
			return nil, err
		}
		resp, err := s.tryParse()
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
	}
}

func unexpected(got ccd.Response, want ccd.Kind) error {
	metrics.IncError(metrics.ErrUnexpectedResp)
	return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedResponse, got.Kind(), want)
}

func (s *Session) checkCRC(r ccd.SingleReading) error {
	if s.crcPolicy == CRCIgnore || r.CRCValid() {
		return nil
	}
	metrics.IncCRCMismatch()
	if s.crcPolicy == CRCEnforce {
		return fmt.Errorf("%w: computed 0x%04X, wire 0x%04X", ErrCRCMismatch, r.CRC, r.WireCRC)
	}
	s.log.Warn("crc_mismatch", "computed", r.CRC, "wire", r.WireCRC)
	return nil
}

// SetIntegrationTime sets the integration time register.
func (s *Session) SetIntegrationTime(t uint16) error {
	return s.send(ccd.SetIntegrationTime(t))
}

// GetExposureTime reads the current exposure time.
func (s *Session) GetExposureTime() (uint16, error) {
	if err := s.send(ccd.GetExposureTime{}); err != nil {
		return 0, err
	}
	resp, err := s.receive()
	if err != nil {
		return 0, err
	}
	v, ok := resp.(ccd.ExposureTime)
	if !ok {
		return 0, unexpected(resp, ccd.KindExposureTime)
	}
	return uint16(v), nil
}

// SetAverageTime sets the averaging register.
func (s *Session) SetAverageTime(t uint8) error {
	return s.send(ccd.SetAverageTime(t))
}

// GetAverageTime reads the averaging register.
func (s *Session) GetAverageTime() (uint8, error) {
	if err := s.send(ccd.GetAverageTime{}); err != nil {
		return 0, err
	}
	resp, err := s.receive()
	if err != nil {
		return 0, err
	}
	v, ok := resp.(ccd.AverageTime)
	if !ok {
		return 0, unexpected(resp, ccd.KindAverageTime)
	}
	return uint8(v), nil
}

// SetTriggerMode selects the acquisition trigger.
func (s *Session) SetTriggerMode(m ccd.TriggerMode) error {
	return s.send(ccd.SetTriggerMode(m))
}

// SetBaudRate reconfigures the UART pins. The USB CDC side is unaffected;
// hosts on raw UART must mirror the new speed on their own port.
func (s *Session) SetBaudRate(b ccd.BaudRate) error {
	if !b.Supported() {
		return fmt.Errorf("%w: %d", ccd.ErrInvalidBaudRate, uint32(b))
	}
	return s.send(ccd.SetSerialBaudRate(b))
}

// GetBaudRate reads the current UART baud rate.
func (s *Session) GetBaudRate() (ccd.BaudRate, error) {
	if err := s.send(ccd.GetSerialBaudRate{}); err != nil {
		return 0, err
	}
	resp, err := s.receive()
	if err != nil {
		return 0, err
	}
	v, ok := resp.(ccd.SerialBaudRate)
	if !ok {
		return 0, unexpected(resp, ccd.KindSerialBaudRate)
	}
	return ccd.BaudRate(v), nil
}

// GetVersion reads the device identification strings.
func (s *Session) GetVersion() (ccd.VersionDetails, error) {
	if err := s.send(ccd.GetVersion{}); err != nil {
		return ccd.VersionDetails{}, err
	}
	resp, err := s.receive()
	if err != nil {
		return ccd.VersionDetails{}, err
	}
	v, ok := resp.(ccd.VersionInfo)
	if !ok {
		return ccd.VersionDetails{}, unexpected(resp, ccd.KindVersionInfo)
	}
	return ccd.VersionDetails(v), nil
}

// GetFrame takes a single reading.
func (s *Session) GetFrame() (ccd.Frame, error) {
	if err := s.send(ccd.SingleRead{}); err != nil {
		return ccd.Frame{}, err
	}
	resp, err := s.receive()
	if err != nil {
		return ccd.Frame{}, err
	}
	r, ok := resp.(ccd.SingleReading)
	if !ok {
		return ccd.Frame{}, unexpected(resp, ccd.KindSingleReading)
	}
	if err := s.checkCRC(r); err != nil {
		return ccd.Frame{}, err
	}
	metrics.IncFrameRx()
	return r.Frame, nil
}

// GetFrames streams count readings into sink. Once ContinuousRead was sent,
// PauseRead is sent on every exit path; a device left streaming would flood the line until power
// cycle, so a failed PauseRead is the one condition logged at error level
// and surfaced even when the read loop itself succeeded.
func (s *Session) GetFrames(sink FrameSink, count int) (err error) {
	if count <= 0 {
		return nil
	}
	if err := s.send(ccd.ContinuousRead{}); err != nil {
		return err
	}
	defer func() {
		if perr := s.send(ccd.PauseRead{}); perr != nil {
			metrics.IncError(metrics.ErrPauseRead)
			s.log.Error("pause_read_failed", "error", perr)
			if err == nil {
				err = perr
			}
		}
	}()
	for i := 0; i < count; i++ {
		resp, rerr := s.receive()
		if rerr != nil {
			return rerr
		}
		r, ok := resp.(ccd.SingleReading)
		if !ok {
			return unexpected(resp, ccd.KindSingleReading)
		}
		if cerr := s.checkCRC(r); cerr != nil {
			return cerr
		}
		metrics.IncFrameRx()
		sink.Accept(r.Frame)
	}
	return nil
}
