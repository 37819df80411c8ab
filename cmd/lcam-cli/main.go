package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/kstaniek/go-lcam-driver/internal/ccd"
	"github.com/kstaniek/go-lcam-driver/internal/metrics"
	"github.com/kstaniek/go-lcam-driver/internal/serial"
	"github.com/kstaniek/go-lcam-driver/internal/session"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("lcam-cli %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	err := run(cfg, l)
	cancel()
	wg.Wait()
	if err != nil {
		l.Error("op_failed", "op", cfg.op, "error", err)
		os.Exit(1)
	}
}

func run(cfg *appConfig, l *slog.Logger) error {
	switch cfg.op {
	case "decode":
		return runDecode(cfg, l)
	case "detect-baud":
		return runDetectBaud(cfg, l)
	}

	conn, err := openPort(cfg, l)
	if err != nil {
		return fmt.Errorf("open serial: %w", err)
	}
	metrics.SetPortReady(true)
	defer func() {
		metrics.SetPortReady(false)
		_ = conn.Close()
	}()

	s := session.New(conn,
		session.WithLogger(l),
		session.WithCRCPolicy(cfg.crc()),
		session.WithReceiveTimeout(cfg.receiveTimeout),
	)

	switch cfg.op {
	case "version":
		v, err := s.GetVersion()
		if err != nil {
			return err
		}
		fmt.Println(v)
	case "read":
		frame, err := s.GetFrame()
		if err != nil {
			return err
		}
		return writeCapture(cfg, l, []ccd.Frame{frame})
	case "read-multi":
		var frames session.FrameBuffer
		if err := s.GetFrames(&frames, cfg.count); err != nil {
			return err
		}
		return writeCapture(cfg, l, frames)
	case "get-baud":
		b, err := s.GetBaudRate()
		if err != nil {
			return err
		}
		fmt.Printf("Current baud rate: %s\n", b)
	case "set-baud":
		n, err := strconv.ParseUint(cfg.value, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %q", ccd.ErrInvalidBaudRate, cfg.value)
		}
		return s.SetBaudRate(ccd.BaudRate(n))
	case "get-avg":
		t, err := s.GetAverageTime()
		if err != nil {
			return err
		}
		fmt.Printf("Current average time: %d\n", t)
	case "set-avg":
		n, err := strconv.ParseUint(cfg.value, 10, 8)
		if err != nil {
			return fmt.Errorf("invalid average time %q: %w", cfg.value, err)
		}
		return s.SetAverageTime(uint8(n))
	case "get-exp":
		t, err := s.GetExposureTime()
		if err != nil {
			return err
		}
		fmt.Printf("Current exposure time: %d\n", t)
	case "set-exp":
		n, err := strconv.ParseUint(cfg.value, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid exposure time %q: %w", cfg.value, err)
		}
		return s.SetIntegrationTime(uint16(n))
	case "set-trigger":
		m, err := parseTriggerMode(cfg.value)
		if err != nil {
			return err
		}
		return s.SetTriggerMode(m)
	}
	return nil
}

// runDetectBaud probes the host-side speeds the device supports until a
// GetSerialBaudRate exchange succeeds. The device answers only when the host
// speed matches its UART configuration, so the first successful probe names
// both sides.
func runDetectBaud(cfg *appConfig, l *slog.Logger) error {
	recvTimeout := cfg.receiveTimeout
	if recvTimeout <= 0 {
		recvTimeout = 500 * time.Millisecond
	}
	open := openSerialPort[cfg.driver]
	for _, hostBaud := range ccd.SupportedBaudRates() {
		conn, err := open(cfg.serialDev, int(hostBaud), cfg.readTimeout)
		if err != nil {
			return fmt.Errorf("open serial at %s: %w", hostBaud, err)
		}
		s := session.New(conn,
			session.WithLogger(l),
			session.WithReceiveTimeout(recvTimeout),
		)
		deviceBaud, err := s.GetBaudRate()
		_ = conn.Close()
		if err != nil {
			l.Debug("baud_probe_failed", "host_baud", hostBaud.String(), "error", err)
			continue
		}
		fmt.Printf("Device answered at host baud %s (device UART baud: %s)\n", hostBaud, deviceBaud)
		return nil
	}
	return errors.New("could not detect baud rate: device did not answer at any supported speed")
}

func parseTriggerMode(s string) (ccd.TriggerMode, error) {
	switch s {
	case "soft":
		return ccd.SoftTrigger, nil
	case "continuous-hard":
		return ccd.ContinuousHardTrigger, nil
	case "single-hard":
		return ccd.SingleHardTrigger, nil
	}
	return 0, fmt.Errorf("unknown trigger mode %q (use soft|continuous-hard|single-hard)", s)
}

func writeCapture(cfg *appConfig, l *slog.Logger, frames []ccd.Frame) error {
	out, err := openOutput(cfg.outputPath)
	if err != nil {
		return err
	}
	if out != os.Stdout {
		defer func() { _ = out.Close() }()
	}
	if err := writeFramesCSV(out, frames); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}
	mean, stddev := captureSummary(frames)
	l.Info("capture_summary", "frames", len(frames), "mean", mean, "stddev", stddev)
	return nil
}

func runDecode(cfg *appConfig, l *slog.Logger) error {
	data, err := os.ReadFile(cfg.inputPath)
	if err != nil {
		return fmt.Errorf("read capture file: %w", err)
	}
	responses, err := ccd.DecodeHexString(string(data))
	if err != nil {
		// Live UART logs routinely end mid-frame; everything decoded up to
		// the cut is still good.
		if !errors.Is(err, ccd.ErrUnexpectedEOP) {
			return fmt.Errorf("decode capture: %w", err)
		}
		l.Warn("capture_truncated", "responses", len(responses))
	}
	var frames []ccd.Frame
	for _, resp := range responses {
		switch r := resp.(type) {
		case ccd.SingleReading:
			if !r.CRCValid() {
				l.Warn("crc_mismatch", "computed", r.CRC, "wire", r.WireCRC)
			}
			frames = append(frames, r.Frame)
		case ccd.VersionInfo:
			l.Info("decoded_version_info", "details", ccd.VersionDetails(r).String())
		default:
			l.Info("decoded_response", "kind", resp.Kind().String())
		}
	}
	l.Info("decode_done", "responses", len(responses), "frames", len(frames))
	if len(frames) == 0 {
		return nil
	}
	return writeCapture(cfg, l, frames)
}

// openSerialPort maps the -driver flag to a serial backend.
var openSerialPort = map[string]func(string, int, time.Duration) (*serial.Conn, error){
	"tarm":  serial.Open,
	"bugst": serial.OpenBugst,
}

func openPort(cfg *appConfig, l *slog.Logger) (*serial.Conn, error) {
	open := openSerialPort[cfg.driver]
	backoff := openRetryMin
	for attempt := 1; ; attempt++ {
		conn, err := open(cfg.serialDev, cfg.baud, cfg.readTimeout)
		if err == nil {
			l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud, "driver", cfg.driver)
			return conn, nil
		}
		if attempt >= openRetryCount {
			return nil, err
		}
		l.Warn("serial_open_retry", "attempt", attempt, "error", err, "backoff", backoff)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > openRetryMax {
			backoff = openRetryMax
		}
	}
}
