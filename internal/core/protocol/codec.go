package protocol

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Wire format: one frame per message, one line per frame.
//
//	tb1 <xxh64-hex> <json>\n
//
// The checksum covers exactly the JSON payload bytes. JSON never contains a
// raw newline, so the \n delimiter is unambiguous under any fragmentation,
// and the stream stays readable with plain cat/grep.
const (
	frameTag = "tb1"

	// MaxFrameSize bounds one encoded frame. Large enough for a full
	// sample buffer of values with slack, small enough to cap memory on
	// a corrupted stream.
	MaxFrameSize = 1 << 20

	checksumHexLen = 16
	frameOverhead  = len(frameTag) + 1 + checksumHexLen + 1
)

type envelope struct {
	Type Kind            `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// AppendFrame encodes one message as a frame, including the trailing
// newline, and appends it to dst. The returned slice must be written to the
// transport in a single Write so concurrent log noise cannot split it.
func AppendFrame(dst []byte, msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return dst, NewProtocolError(ErrorCodeMalformedFrame, "encode message body", err)
	}
	payload, err := json.Marshal(envelope{Type: msg.Kind(), Msg: body})
	if err != nil {
		return dst, NewProtocolError(ErrorCodeMalformedFrame, "encode frame envelope", err)
	}
	if len(payload)+frameOverhead+1 > MaxFrameSize {
		return dst, NewProtocolError(ErrorCodeFrameTooLarge, "encoded frame exceeds limit", ErrFrameTooLarge).
			WithContext("size", len(payload))
	}

	dst = append(dst, frameTag...)
	dst = append(dst, ' ')
	dst = appendSum64Hex(dst, xxhash.Sum64(payload))
	dst = append(dst, ' ')
	dst = append(dst, payload...)
	dst = append(dst, '\n')
	return dst, nil
}

// EncodeFrame is AppendFrame into a fresh buffer.
func EncodeFrame(msg Message) ([]byte, error) {
	return AppendFrame(nil, msg)
}

// DecodeFrame parses one frame line (without the trailing newline) into a
// message. A failure never yields a partial message: the result is nil plus
// a categorized error.
func DecodeFrame(line []byte) (Message, *Error) {
	// Serial-style transports may deliver \r\n endings.
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}

	if len(line) < frameOverhead+2 || string(line[:len(frameTag)]) != frameTag || line[len(frameTag)] != ' ' {
		return nil, NewProtocolError(ErrorCodeMalformedFrame, "frame tag missing", ErrMalformedFrame)
	}
	sumField := line[len(frameTag)+1 : len(frameTag)+1+checksumHexLen]
	if line[frameOverhead-1] != ' ' {
		return nil, NewProtocolError(ErrorCodeMalformedFrame, "frame header malformed", ErrMalformedFrame)
	}
	want, err := strconv.ParseUint(string(sumField), 16, 64)
	if err != nil {
		return nil, NewProtocolError(ErrorCodeMalformedFrame, "frame checksum field malformed", ErrMalformedFrame)
	}

	payload := line[frameOverhead:]
	if got := xxhash.Sum64(payload); got != want {
		return nil, NewProtocolError(ErrorCodeChecksumMismatch, "frame checksum mismatch", ErrChecksumMismatch).
			WithContext("want", want).
			WithContext("got", got)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, NewProtocolError(ErrorCodeMalformedFrame, "frame payload is not valid JSON", err)
	}
	msg := newByKind(env.Type)
	if msg == nil {
		return nil, NewProtocolError(ErrorCodeUnknownMessageType, "unknown message type", ErrUnknownMessageType).
			WithContext("type", string(env.Type))
	}
	if len(env.Msg) > 0 {
		if err := json.Unmarshal(env.Msg, msg); err != nil {
			return nil, NewProtocolError(ErrorCodeMalformedFrame, "message body malformed", err)
		}
	}
	return msg, nil
}

func appendSum64Hex(dst []byte, sum uint64) []byte {
	const digits = "0123456789abcdef"
	var buf [checksumHexLen]byte
	for i := checksumHexLen - 1; i >= 0; i-- {
		buf[i] = digits[sum&0xF]
		sum >>= 4
	}
	return append(dst, buf[:]...)
}
