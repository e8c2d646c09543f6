// Package httprange implements the pure header logic of RFC 7233 range
// serving: parsing Range headers, selecting the conditional request to send
// with the metadata fetch, validating ranges against a content length and
// resolving them to byte offsets. It performs no I/O.
package httprange

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mediastore/blobfs/internal/blob"
)

// ByteRange is one range-spec from a Range header. At least one bound is
// present. For a suffix range ("-N") only End is set and it holds the
// suffix length, not a position.
type ByteRange struct {
	Start    int64
	End      int64
	HasStart bool
	HasEnd   bool
}

// ResolvedRange is a validated range as absolute zero-based inclusive byte
// positions within a body of TotalLength bytes.
type ResolvedRange struct {
	From        int64
	To          int64
	TotalLength int64
}

// Length returns the number of bytes the range covers.
func (r ResolvedRange) Length() int64 {
	return r.To - r.From + 1
}

// ContentRange formats the Content-Range header value for the range.
func (r ResolvedRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.From, r.To, r.TotalLength)
}

// UnsatisfiableContentRange formats the Content-Range value of a 416
// response.
func UnsatisfiableContentRange(totalLength int64) string {
	return fmt.Sprintf("bytes */%d", totalLength)
}

// Parse parses a Range header value. It returns ok=false for an absent or
// malformed header; per RFC 7233 a malformed Range header is ignored rather
// than rejected.
func Parse(header string) ([]ByteRange, bool) {
	const prefix = "bytes="
	if header == "" || !strings.HasPrefix(header, prefix) {
		return nil, false
	}

	var ranges []ByteRange
	for _, spec := range strings.Split(header[len(prefix):], ",") {
		spec = strings.TrimSpace(spec)

		dash := strings.Index(spec, "-")
		if dash < 0 {
			return nil, false
		}

		var r ByteRange
		if start := spec[:dash]; start != "" {
			n, err := strconv.ParseInt(start, 10, 64)
			if err != nil || n < 0 {
				return nil, false
			}
			r.Start = n
			r.HasStart = true
		}
		if end := spec[dash+1:]; end != "" {
			n, err := strconv.ParseInt(end, 10, 64)
			if err != nil || n < 0 {
				return nil, false
			}
			r.End = n
			r.HasEnd = true
		}

		if !r.HasStart && !r.HasEnd {
			return nil, false
		}
		ranges = append(ranges, r)
	}

	if len(ranges) == 0 {
		return nil, false
	}
	return ranges, true
}

// Conditional selects the precondition to attach to the metadata fetch.
//
// Without a Range header the ETag condition wins: If-None-Match is used
// when present and If-Modified-Since is only consulted otherwise. With a
// Range header, If-Range is honored (parsed as a date first, as an ETag if
// that fails) and an explicit If-Unmodified-Since overrides the date form.
// Returns nil when the request is unconditional.
func Conditional(h http.Header) *blob.Conditions {
	if h.Get("Range") == "" {
		if inm := h.Get("If-None-Match"); inm != "" {
			return &blob.Conditions{IfNoneMatch: inm}
		}
		if ims := h.Get("If-Modified-Since"); ims != "" {
			if t, err := http.ParseTime(ims); err == nil {
				return &blob.Conditions{IfModifiedSince: t}
			}
		}
		return nil
	}

	var cond *blob.Conditions
	if ir := h.Get("If-Range"); ir != "" {
		if t, err := http.ParseTime(ir); err == nil {
			cond = &blob.Conditions{IfUnmodifiedSince: t}
		} else {
			cond = &blob.Conditions{IfMatch: ir}
		}
	}
	if ius := h.Get("If-Unmodified-Since"); ius != "" {
		if t, err := http.ParseTime(ius); err == nil {
			if cond == nil {
				cond = &blob.Conditions{}
			}
			cond.IfUnmodifiedSince = t
		}
	}
	return cond
}

// Validate checks every range against the content length. A single invalid
// range rejects the whole set; the caller must answer 416. Suffix ranges
// are always satisfiable (an overlong suffix clamps to the full body in
// Resolve) and bypass the end check.
func Validate(ranges []ByteRange, totalLength int64) bool {
	if len(ranges) == 0 {
		return false
	}

	for _, r := range ranges {
		if r.HasStart && r.HasEnd {
			if r.Start > r.End {
				return false
			}
			if r.End >= totalLength {
				return false
			}
		}
		if r.HasStart && !r.HasEnd && r.Start >= totalLength {
			return false
		}
	}
	return true
}

// Resolve normalizes a range to absolute positions: suffix ranges count
// back from the end (clamped at zero), open-ended ranges run to the last
// byte and explicit end positions clamp to the content length.
func Resolve(r ByteRange, totalLength int64) ResolvedRange {
	last := totalLength - 1

	var from, to int64
	switch {
	case r.HasStart && r.HasEnd:
		from = r.Start
		to = min(r.End, last)
	case r.HasEnd:
		// Suffix range: End is the requested suffix length.
		from = max(totalLength-r.End, 0)
		to = last
	default:
		from = r.Start
		to = last
	}

	return ResolvedRange{From: from, To: to, TotalLength: totalLength}
}
