package macbid

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// frameReader splits a webchannel response into its frames. Every frame is
// `<length>\n<json>` where length counts UTF-16 code units of the json.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) frameReader {
	return frameReader{r: bufio.NewReader(r)}
}

func utf16Len(r rune) int {
	if r >= 0x10000 && r <= utf8.MaxRune {
		return 2
	}
	return 1
}

// Next returns the next frame, io.EOF when the stream ended cleanly between
// frames and io.ErrUnexpectedEOF when it ended inside one.
func (f frameReader) Next() (string, error) {
	var header string
	for {
		line, err := f.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && strings.TrimSpace(line) == "" {
				return "", io.EOF
			}
			if err == io.EOF {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		header = strings.TrimSpace(line)
		if header != "" {
			break
		}
	}

	length, err := strconv.Atoi(header)
	if err != nil || length < 0 {
		return "", fmt.Errorf("webchannel: bad frame length '%s'", header)
	}

	var frame strings.Builder
	units := 0
	for units < length {
		r, _, err := f.r.ReadRune()
		if err == io.EOF {
			return "", io.ErrUnexpectedEOF
		}
		if err != nil {
			return "", err
		}
		frame.WriteRune(r)
		units += utf16Len(r)
	}
	return frame.String(), nil
}

// ParseFrames splits a complete webchannel body into frames.
func ParseFrames(body string) ([]string, error) {
	reader := newFrameReader(strings.NewReader(body))
	var out []string
	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, frame)
	}
}

// channelEntry is one `[arrayId, payload]` pair of a frame.
type channelEntry struct {
	ArrayID int
	Payload json.RawMessage
}

func decodeEntries(frame string) ([]channelEntry, error) {
	var raw []json.RawMessage
	err := json.Unmarshal([]byte(frame), &raw)
	if err != nil {
		return nil, fmt.Errorf("webchannel: decode frame: %w", err)
	}
	out := make([]channelEntry, 0, len(raw))
	for _, r := range raw {
		var pair []json.RawMessage
		err := json.Unmarshal(r, &pair)
		if err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("webchannel: malformed entry %s", string(r))
		}
		var id int
		err = json.Unmarshal(pair[0], &id)
		if err != nil {
			return nil, fmt.Errorf("webchannel: malformed array id %s", string(pair[0]))
		}
		out = append(out, channelEntry{ArrayID: id, Payload: pair[1]})
	}
	return out, nil
}

// controlMessage returns the control verb of a payload like ["c", ...] or
// ["noop"], ok is false for data payloads.
func controlMessage(payload json.RawMessage) (verb string, args []json.RawMessage, ok bool) {
	var items []json.RawMessage
	if json.Unmarshal(payload, &items) != nil || len(items) == 0 {
		return "", nil, false
	}
	if json.Unmarshal(items[0], &verb) != nil {
		return "", nil, false
	}
	return verb, items[1:], true
}
