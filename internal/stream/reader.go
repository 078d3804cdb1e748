package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxLineSize bounds a single status line.
const DefaultMaxLineSize = 1 << 20

// ErrLineTooLong is returned when a line exceeds the configured maximum.
var ErrLineTooLong = errors.New("stream: status line too long")

// Reader yields Events from a chunked body. Every read that returns data ends
// a line, so a status message flushed without a trailing newline is still
// delivered as soon as it arrives. It is not safe for concurrent use.
type Reader struct {
	src     io.Reader
	dec     transform.Transformer
	buf     []byte
	dst     []byte
	carry   []byte // leading bytes of a rune split across reads
	partial []byte
	pending []string
	maxLine int
	err     error
	logger  *zap.Logger
	lines   int
	started bool
}

// Option configures a Reader.
type Option func(*readerOptions)

type readerOptions struct {
	maxLine int
	logger  *zap.Logger
}

// WithMaxLineSize overrides DefaultMaxLineSize.
func WithMaxLineSize(n int) Option {
	return func(o *readerOptions) {
		if n > 0 {
			o.maxLine = n
		}
	}
}

// WithLogger sets the logger used for parse failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *readerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

const readSize = 64 << 10

// NewReader wraps r. Bytes are decoded as UTF-8 with invalid sequences
// replaced by U+FFFD. A rune split across two reads is reassembled before
// splitting, and a leading byte order mark is dropped.
func NewReader(r io.Reader, opts ...Option) *Reader {
	o := readerOptions{maxLine: DefaultMaxLineSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reader{
		src:     r,
		dec:     unicode.UTF8.NewDecoder(),
		buf:     make([]byte, readSize),
		dst:     make([]byte, 4096),
		maxLine: o.maxLine,
		logger:  o.logger,
	}
}

// Next returns the next non-blank line as an Event, or io.EOF once the body is
// exhausted.
func (r *Reader) Next() (Event, error) {
	for {
		for len(r.pending) > 0 {
			line := r.pending[0]
			r.pending = r.pending[1:]
			r.lines++
			if strings.TrimSpace(line) == "" {
				continue
			}
			ev, err := parse(line)
			if err != nil {
				r.logger.Debug("status line is not JSON, treating as text",
					zap.Int("line", r.lines),
					zap.String("raw", ev.Raw),
					zap.Error(err))
			}
			return ev, nil
		}
		if r.err != nil {
			return Event{}, r.err
		}
		r.fill()
	}
}

// fill performs one read and queues the lines it completes.
func (r *Reader) fill() {
	n, err := r.src.Read(r.buf)
	atEOF := errors.Is(err, io.EOF)
	if n > 0 || (atEOF && len(r.carry) > 0) {
		in := append(r.carry, r.buf[:n]...)
		text, derr := r.decode(in, atEOF)
		if derr != nil {
			r.err = fmt.Errorf("decode status stream: %w", derr)
			return
		}
		r.split(text)
	}
	switch {
	case r.err != nil:
	case atEOF:
		r.err = io.EOF
	case err != nil:
		r.err = fmt.Errorf("read status stream: %w", err)
	}
}

// decode converts in to UTF-8 text, keeping an incomplete trailing rune in
// r.carry unless atEOF.
func (r *Reader) decode(in []byte, atEOF bool) ([]byte, error) {
	var out []byte
	for {
		nDst, nSrc, err := r.dec.Transform(r.dst, in, atEOF)
		out = append(out, r.dst[:nDst]...)
		in = in[nSrc:]
		switch {
		case errors.Is(err, transform.ErrShortDst):
			continue
		case errors.Is(err, transform.ErrShortSrc):
			r.carry = bytes.Clone(in)
			return out, nil
		case err != nil:
			return nil, err
		}
		r.carry = r.carry[:0]
		return out, nil
	}
}

// split queues every complete line in text. The tail is queued too unless a
// rune is still waiting in r.carry, which means the read stopped mid-rune.
func (r *Reader) split(text []byte) {
	r.partial = append(r.partial, text...)
	for {
		i := bytes.IndexByte(r.partial, '\n')
		if i < 0 {
			break
		}
		if !r.queue(r.partial[:i]) {
			return
		}
		r.partial = r.partial[i+1:]
	}
	if len(r.carry) > 0 || len(r.partial) == 0 {
		if len(r.partial) > r.maxLine {
			r.queue(r.partial)
		}
		return
	}
	r.queue(r.partial)
	r.partial = nil
}

func (r *Reader) queue(line []byte) bool {
	if len(line) > r.maxLine {
		r.err = fmt.Errorf("%w (line %d)", ErrLineTooLong, r.lines+len(r.pending)+1)
		return false
	}
	s := strings.TrimSuffix(string(line), "\r")
	if !r.started {
		s = strings.TrimPrefix(s, "\ufeff")
		r.started = true
	}
	r.pending = append(r.pending, s)
	return true
}

// Consume reads events from body until it ends, ctx is done, or fn fails.
// Cancellation is observed between lines; callers that need to interrupt a
// blocked read should tie body to ctx (an http.Request with ctx does).
func Consume(ctx context.Context, body io.Reader, fn func(Event) error, opts ...Option) error {
	rd := NewReader(body, opts...)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
