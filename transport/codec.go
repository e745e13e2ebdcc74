package transport

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/meshkit/clientgw/internal/safepool"
	"github.com/meshkit/clientgw/message"
)

// Frame format: a 4-byte big-endian length prefix followed by a JSON body.
// Message serialization framing is explicitly out of scope for this
// subsystem (SPEC_FULL.md §1); this codec exists only so the demo binary
// and the integration tests have something real to put on the wire. A
// production Connection swaps this out behind the same interfaces.
const (
	lengthPrefixSize = 4
	// maxFrameSize guards against a corrupt or hostile peer claiming an
	// enormous body and forcing an equally enormous allocation.
	maxFrameSize = 4 * 1024 * 1024
)

var (
	ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")
)

// bufferPool recycles the scratch buffer used to marshal a Message before
// it's framed onto the wire, avoiding one allocation per outbound message.
var bufferPool = safepool.NewBufferPool(func() *bytes.Buffer { return bytes.NewBuffer(nil) })

func encodeFrame(w *bufio.Writer, msg *message.Message) error {
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	body := bytes.TrimRight(buf.Bytes(), "\n")
	if len(body) > maxFrameSize {
		return ErrFrameTooLarge
	}

	var header [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func decodeFrame(r *bufio.Reader) (*message.Message, error) {
	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	msg := &message.Message{}
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return msg, nil
}
