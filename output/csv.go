// Package output serializes ads to a delimited flat file.
package output

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"ads-scraper/models"
)

// DefaultDelimiter separates fields in the output file
const DefaultDelimiter = ';'

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options controls how ads are written
type Options struct {
	Delimiter rune
	BOM       bool // prefix the file with a UTF-8 byte order mark
}

// WriteAds creates or truncates path and writes the header and every ad.
// It returns the number of ad rows written.
func WriteAds(path string, ads []models.Ad, opts Options) (int, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}

	n, err := Write(f, ads, opts)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output file: %w", cerr)
	}
	return n, err
}

// Write writes the header and every ad to w
func Write(w io.Writer, ads []models.Ad, opts Options) (int, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = DefaultDelimiter
	}

	bw := bufio.NewWriter(w)
	if opts.BOM {
		if _, err := bw.Write(utf8BOM); err != nil {
			return 0, fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	cw := csv.NewWriter(bw)
	cw.Comma = opts.Delimiter

	if err := cw.Write(models.Header()); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	written := 0
	for _, ad := range ads {
		if err := cw.Write(ad.Record()); err != nil {
			return written, fmt.Errorf("failed to write row %d: %w", written+1, err)
		}
		written++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("failed to flush rows: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("failed to flush output: %w", err)
	}
	return written, nil
}
