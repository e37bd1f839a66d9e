package llm

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// readSSE decodes a server-sent event stream and calls onEvent once per
// event with its name and joined data lines. Comment lines are skipped.
func readSSE(r io.Reader, onEvent func(event, data string) error) error {
	br := bufio.NewReader(r)
	var (
		eventName string
		dataLines []string
	)

	flush := func() error {
		if len(dataLines) == 0 {
			eventName = ""
			return nil
		}
		data := strings.Join(dataLines, "\n")
		ev := eventName
		dataLines = nil
		eventName = ""
		return onEvent(ev, data)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := err != nil
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if ferr := flush(); ferr != nil {
				return ferr
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		if eof {
			return flush()
		}
	}
}

// decodeEventData parses the JSON payloads of one SSE event. Data lines are
// normally one document; if the joined text does not parse, each line is
// tried on its own. Lines that are not JSON objects are skipped.
func decodeEventData(data string) []map[string]any {
	data = strings.TrimSpace(data)
	if data == "" || data == "[DONE]" {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(data), &obj); err == nil {
		return []map[string]any{obj}
	}

	var out []map[string]any
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "[DONE]" {
			continue
		}
		var lineObj map[string]any
		if err := json.Unmarshal([]byte(line), &lineObj); err == nil {
			out = append(out, lineObj)
		}
	}
	return out
}
