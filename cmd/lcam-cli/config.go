package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-lcam-driver/internal/session"
)

type appConfig struct {
	op              string
	serialDev       string
	baud            int
	driver          string
	readTimeout     time.Duration
	receiveTimeout  time.Duration
	crcPolicy       string
	count           int
	value           string
	inputPath       string
	outputPath      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
}

// ops that need a -value argument.
var valueOps = map[string]struct{}{
	"set-baud": {}, "set-avg": {}, "set-exp": {}, "set-trigger": {},
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"Usage: %s [flags] <op>\n\nOps: version, read, read-multi, get-baud, set-baud, detect-baud,\n     get-avg, set-avg, get-exp, set-exp, set-trigger, decode\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baud := flag.Int("baud", 115200, "Host-side serial baud rate")
	driver := flag.String("driver", "tarm", "Serial backend: tarm|bugst")
	readTimeout := flag.Duration("read-timeout", 100*time.Millisecond, "Serial read timeout")
	receiveTimeout := flag.Duration("receive-timeout", 0, "If >0, bound one whole response receive (0 = unbounded; detect-baud then uses 500ms)")
	crcPolicy := flag.String("crc", "warn", "Frame checksum policy: warn|enforce|ignore")
	count := flag.Int("count", 50, "Frames captured by read-multi")
	value := flag.String("value", "", "Value for set-* ops (baud rate, time register, trigger mode)")
	inputPath := flag.String("in", "", "Hex-text capture file for the decode op")
	outputPath := flag.String("output", "", "CSV output path (empty = stdout; existing files are not overwritten)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Usage = usage
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.op = flag.Arg(0)
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.driver = *driver
	cfg.readTimeout = *readTimeout
	cfg.receiveTimeout = *receiveTimeout
	cfg.crcPolicy = *crcPolicy
	cfg.count = *count
	cfg.value = *value
	cfg.inputPath = *inputPath
	cfg.outputPath = *outputPath
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices – only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.op {
	case "version", "read", "read-multi", "get-baud", "set-baud", "detect-baud",
		"get-avg", "set-avg", "get-exp", "set-exp", "set-trigger", "decode":
	case "":
		return errors.New("missing op (run with -h for the list)")
	default:
		return fmt.Errorf("unknown op: %s", c.op)
	}
	if _, ok := valueOps[c.op]; ok && c.value == "" {
		return fmt.Errorf("op %s needs -value", c.op)
	}
	if c.op == "decode" && c.inputPath == "" {
		return errors.New("op decode needs -in")
	}
	switch c.driver {
	case "tarm", "bugst":
	default:
		return fmt.Errorf("invalid driver: %s", c.driver)
	}
	switch c.crcPolicy {
	case "warn", "enforce", "ignore":
	default:
		return fmt.Errorf("invalid crc policy: %s", c.crcPolicy)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.readTimeout <= 0 {
		return errors.New("read-timeout must be > 0")
	}
	if c.receiveTimeout < 0 {
		return errors.New("receive-timeout must be >= 0")
	}
	if c.count <= 0 {
		return fmt.Errorf("count must be > 0 (got %d)", c.count)
	}
	return nil
}

func (c *appConfig) crc() session.CRCPolicy {
	switch c.crcPolicy {
	case "enforce":
		return session.CRCEnforce
	case "ignore":
		return session.CRCIgnore
	default:
		return session.CRCWarn
	}
}

// applyEnvOverrides maps LCAM_* environment variables to config fields
// unless a corresponding flag was explicitly set. Empty values are ignored.
// Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["serial"]; !ok {
		if v, ok := get("LCAM_SERIAL"); ok && v != "" {
			c.serialDev = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("LCAM_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid LCAM_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["driver"]; !ok {
		if v, ok := get("LCAM_DRIVER"); ok && v != "" {
			c.driver = v
		}
	}
	if _, ok := set["read-timeout"]; !ok {
		if v, ok := get("LCAM_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.readTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid LCAM_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["receive-timeout"]; !ok {
		if v, ok := get("LCAM_RECEIVE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.receiveTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid LCAM_RECEIVE_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["crc"]; !ok {
		if v, ok := get("LCAM_CRC"); ok && v != "" {
			c.crcPolicy = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("LCAM_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("LCAM_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("LCAM_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("LCAM_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid LCAM_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
