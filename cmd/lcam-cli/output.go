package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/kstaniek/go-lcam-driver/internal/ccd"
)

// writeFramesCSV writes one frame per line, samples comma-separated.
func writeFramesCSV(w io.Writer, frames []ccd.Frame) error {
	bw := bufio.NewWriter(w)
	for _, f := range frames {
		for i, px := range f {
			if i > 0 {
				if err := bw.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(strconv.FormatUint(uint64(px), 10)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// openOutput returns the CSV destination. Existing files are never
// overwritten; captures are too expensive to lose to a typo.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return os.Stdout, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return f, nil
}

// captureSummary aggregates all samples of a capture. A healthy dark
// reading is near-flat, so mean and spread are the quickest sanity check
// an operator can get without plotting.
func captureSummary(frames []ccd.Frame) (mean, stddev float64) {
	if len(frames) == 0 {
		return 0, 0
	}
	vals := make([]float64, 0, len(frames)*ccd.FramePixelCount)
	for _, f := range frames {
		for _, px := range f {
			vals = append(vals, float64(px))
		}
	}
	return stat.Mean(vals, nil), stat.StdDev(vals, nil)
}
