package registry

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// WheelMetadata fetches the dist-info METADATA contents for file, trying
// progressively more expensive strategies: a PEP 658 metadata sidecar, then
// an HTTP range-request reading only the wheel's ZIP central directory plus
// the METADATA member, then a full download as a last resort. Grounded on
// registry_client.rs's wheel_metadata_registry/wheel_metadata_no_pep658.
func (s *Service) WheelMetadata(ctx context.Context, idx Index, file File) ([]byte, error) {
	if file.DistInfoMetadata {
		body, err := s.get(ctx, idx, "wheel-metadata", file.Filename+".metadata", file.URL+".metadata")
		if err == nil {
			return body, nil
		}
		// Fall through to the slower strategies; some indexes advertise
		// dist-info-metadata but don't actually publish the sidecar.
	}

	if body, err := s.rangeFetchMetadata(ctx, file); err == nil {
		return body, nil
	}

	return s.fullStreamMetadata(ctx, idx, file)
}

// rangeFetchMetadata downloads only the wheel's ZIP central directory
// (a small trailer at the end of the file) plus the METADATA member itself,
// using HTTP Range requests, without downloading the whole wheel.
func (s *Service) rangeFetchMetadata(ctx context.Context, file File) ([]byte, error) {
	size, err := s.contentLength(ctx, file.URL)
	if err != nil {
		return nil, err
	}

	// The End Of Central Directory record is at most 22 bytes plus up to
	// 65535 bytes of comment; read the last 65KiB plus 22 bytes to be safe.
	tailSize := int64(65*1024) + 22
	if tailSize > size {
		tailSize = size
	}

	tail, err := s.rangeGet(ctx, file.URL, size-tailSize, size-1)
	if err != nil {
		return nil, err
	}

	directoryOffset, _, err := findCentralDirectory(tail, size-tailSize)
	if err != nil {
		return nil, err
	}

	directory := tail
	if directoryOffset < size-tailSize {
		// The central directory starts before our tail window; fetch it directly.
		directory, err = s.rangeGet(ctx, file.URL, directoryOffset, size-1)
		if err != nil {
			return nil, err
		}
	} else {
		directory = tail[directoryOffset-(size-tailSize):]
	}

	entryOffset, entrySize, found := findMetadataEntry(directory)
	if !found {
		return nil, fmt.Errorf("no METADATA entry in central directory of %s", file.Filename)
	}

	raw, err := s.rangeGet(ctx, file.URL, entryOffset, entryOffset+entrySize-1)
	if err != nil {
		return nil, err
	}

	return extractLocalFileEntry(raw)
}

func (s *Service) contentLength(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating HEAD request for %s: %w", url, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d from HEAD %s", resp.StatusCode, url)
	}

	if resp.ContentLength <= 0 {
		return 0, fmt.Errorf("unknown content length for %s", url)
	}

	return resp.ContentLength, nil
}

func (s *Service) rangeGet(ctx context.Context, url string, start, end int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating range request for %s: %w", url, err)
	}

	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting range of %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server doesn't support range requests for %s (status %d)", url, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// eocdSignature is the End Of Central Directory record's magic number.
const eocdSignature = 0x06054b50

// findCentralDirectory locates the ZIP central directory's offset and size
// by scanning tail (the trailing bytes of the archive, starting at
// tailStart within the full file) for the End Of Central Directory record.
func findCentralDirectory(tail []byte, tailStart int64) (offset, size int64, err error) {
	sig := []byte{0x50, 0x4b, 0x05, 0x06}

	idx := bytes.LastIndex(tail, sig)
	if idx < 0 || idx+22 > len(tail) {
		return 0, 0, fmt.Errorf("end of central directory record not found")
	}

	eocd := tail[idx : idx+22]

	size = int64(le32(eocd[12:16]))
	offset = int64(le32(eocd[16:20]))

	return offset, size, nil
}

// findMetadataEntry scans a ZIP central directory for the *.dist-info/METADATA
// entry and returns the offset and approximate size of its local file header
// plus compressed data.
func findMetadataEntry(directory []byte) (offset, size int64, found bool) {
	const cdSignature = "PK\x01\x02"

	pos := 0

	for pos+46 <= len(directory) {
		if string(directory[pos:pos+4]) != cdSignature {
			break
		}

		compressedSize := int64(le32(directory[pos+20 : pos+24]))
		nameLen := int(le16(directory[pos+28 : pos+30]))
		extraLen := int(le16(directory[pos+30 : pos+32]))
		commentLen := int(le16(directory[pos+32 : pos+34]))
		localHeaderOffset := int64(le32(directory[pos+42 : pos+46]))

		nameStart := pos + 46
		nameEnd := nameStart + nameLen

		if nameEnd > len(directory) {
			break
		}

		name := string(directory[nameStart:nameEnd])

		if strings.HasSuffix(name, "/METADATA") && strings.Contains(name, ".dist-info/") {
			// Local header (30 bytes + name + extra) precedes the data; a
			// generous fixed allowance covers both without a second round trip.
			return localHeaderOffset, compressedSize + int64(nameLen) + int64(extraLen) + 256, true
		}

		pos = nameEnd + extraLen + commentLen
	}

	return 0, 0, false
}

// extractLocalFileEntry strips the ZIP local file header from raw (which
// was fetched as an over-generous byte range starting at the header) and
// returns the decompressed member contents.
func extractLocalFileEntry(raw []byte) ([]byte, error) {
	if len(raw) < 30 || string(raw[0:4]) != "PK\x03\x04" {
		return nil, fmt.Errorf("invalid local file header")
	}

	nameLen := int(le16(raw[26:28]))
	extraLen := int(le16(raw[28:30]))

	dataStart := 30 + nameLen + extraLen
	if dataStart > len(raw) {
		return nil, fmt.Errorf("local file header overruns fetched range")
	}

	method := le16(raw[8:10])

	switch method {
	case 0: // stored
		return raw[dataStart:], nil
	case 8: // deflated
		// raw[dataStart:] is just the local file header plus compressed
		// bytes, not a full archive with its own central directory, so
		// archive/zip can't reopen it; DEFLATE is self-terminating, so a
		// raw flate.Reader decodes it directly and ignores any trailing
		// padding we over-fetched.
		fr := flate.NewReader(bytes.NewReader(raw[dataStart:]))
		defer func() { _ = fr.Close() }()

		body, err := io.ReadAll(fr)
		if err != nil {
			return nil, fmt.Errorf("inflating METADATA entry: %w", err)
		}

		return body, nil
	default:
		return nil, fmt.Errorf("unsupported compression method %d", method)
	}
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// fullStreamMetadata downloads the whole wheel and extracts its METADATA
// member, the fallback when neither the PEP 658 sidecar nor range requests
// are available.
func (s *Service) fullStreamMetadata(ctx context.Context, idx Index, file File) ([]byte, error) {
	body, err := s.get(ctx, idx, "wheel-full", file.Filename, file.URL)
	if err != nil {
		return nil, fmt.Errorf("downloading %s for metadata extraction: %w", file.Filename, err)
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("opening %s as zip: %w", file.Filename, err)
	}

	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".dist-info/METADATA") {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("opening METADATA in %s: %w", file.Filename, err)
			}
			defer func() { _ = rc.Close() }()

			return io.ReadAll(rc)
		}
	}

	return nil, fmt.Errorf("no METADATA entry found in %s", file.Filename)
}
