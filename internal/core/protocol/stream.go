package protocol

import (
	"bufio"
	"errors"
	"io"
)

// DefaultScanBudget caps how many bytes of leading noise the decoder will
// search for the Hello frame before declaring the stream unsynchronizable.
const DefaultScanBudget = 1 << 20

// StreamEncoder writes frames to a byte stream. The frame buffer is
// allocated once and reused, so steady-state encoding does not grow the
// heap; on the device side one encoder lives for the whole run.
type StreamEncoder struct {
	w       io.Writer
	scratch []byte
}

func NewStreamEncoder(w io.Writer) *StreamEncoder {
	return &StreamEncoder{
		w:       w,
		scratch: make([]byte, 0, 4096),
	}
}

// Encode frames one message and writes it in a single Write call, so a
// frame can never interleave with other output on the same descriptor.
func (e *StreamEncoder) Encode(msg Message) error {
	frame, err := AppendFrame(e.scratch[:0], msg)
	if err != nil {
		return err
	}
	e.scratch = frame[:0]
	if _, err := e.w.Write(frame); err != nil {
		return NewProtocolError(ErrorCodeStreamClosed, "write frame", err)
	}
	return nil
}

// StreamDecoder turns a byte stream back into messages. It is insensitive
// to chunk boundaries: frames are assembled internally, so feeding one byte
// at a time decodes the exact same sequence as feeding the whole stream.
//
// Until the Hello frame arrives the decoder is scanning: complete lines
// that are not a valid Hello frame are discarded as transport noise
// (flasher output, probe chatter). From Hello on, every line must be a
// valid frame.
type StreamDecoder struct {
	r          *bufio.Reader
	synced     bool
	skipped    int
	scanBudget int
}

func NewStreamDecoder(r io.Reader) *StreamDecoder {
	return &StreamDecoder{
		r:          bufio.NewReaderSize(r, 64<<10),
		scanBudget: DefaultScanBudget,
	}
}

// WithScanBudget overrides the leading-noise budget.
func (d *StreamDecoder) WithScanBudget(n int) *StreamDecoder {
	d.scanBudget = n
	return d
}

// Synced reports whether the Hello frame has been seen.
func (d *StreamDecoder) Synced() bool {
	return d.synced
}

// SkippedBytes returns how much leading noise was discarded before sync.
func (d *StreamDecoder) SkippedBytes() int {
	return d.skipped
}

// Next returns the next decoded message. io.EOF signals a clean end of
// stream after sync; every other failure is a categorized *Error. A partial
// trailing line is a truncated frame, never a message.
func (d *StreamDecoder) Next() (Message, error) {
	for {
		line, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !d.synced {
					return nil, NewProtocolError(ErrorCodeStreamDesync, "stream ended before handshake", ErrStreamDesync).
						WithContext("skipped_bytes", d.skipped)
				}
				if len(line) > 0 {
					return nil, NewProtocolError(ErrorCodeMalformedFrame, "truncated frame at end of stream", ErrMalformedFrame)
				}
				return nil, io.EOF
			}
			var categorized *Error
			if errors.As(err, &categorized) {
				return nil, err
			}
			return nil, NewProtocolError(ErrorCodeStreamClosed, "transport read failed", err)
		}

		msg, derr := DecodeFrame(line)
		if d.synced {
			if derr != nil {
				return nil, derr
			}
			return msg, nil
		}

		// Scanning: only a valid Hello locks the stream.
		if derr == nil {
			if hello, ok := msg.(*Hello); ok {
				d.synced = true
				return hello, nil
			}
		}
		d.skipped += len(line) + 1
		if d.skipped > d.scanBudget {
			return nil, NewProtocolError(ErrorCodeStreamDesync, "no handshake within scan budget", ErrStreamDesync).
				WithContext("skipped_bytes", d.skipped)
		}
	}
}

// readLine assembles one \n-terminated line. A line whose frame would
// exceed MaxFrameSize aborts the read. On EOF the partial remainder
// (possibly empty) is returned alongside the error so the caller can
// distinguish truncation from a clean end.
func (d *StreamDecoder) readLine() ([]byte, error) {
	var acc []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		acc = append(acc, chunk...)
		switch {
		case err == nil:
			if len(acc) > MaxFrameSize {
				return nil, NewProtocolError(ErrorCodeFrameTooLarge, "line exceeds frame limit", ErrFrameTooLarge).
					WithContext("size", len(acc))
			}
			return acc[:len(acc)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			// The newline is still outstanding, so the finished line can
			// only be longer than what has accumulated.
			if len(acc) >= MaxFrameSize {
				return nil, NewProtocolError(ErrorCodeFrameTooLarge, "line exceeds frame limit", ErrFrameTooLarge).
					WithContext("size", len(acc))
			}
		default:
			return acc, err
		}
	}
}
