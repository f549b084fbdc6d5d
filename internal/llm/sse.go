package llm

import (
	"bufio"
	"io"
	"strings"
)

// frame is one server-sent event as emitted by the providers.
type frame struct {
	Event string
	Data  string
}

type sseReader struct {
	r *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next frame carrying data. A trailing frame without the
// terminating blank line is still returned before io.EOF.
func (s *sseReader) Next() (frame, error) {
	var (
		f    frame
		data []string
	)
	for {
		line, err := s.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF && len(data) > 0 {
				f.Data = strings.Join(data, "\n")
				return f, nil
			}
			return frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 {
				f.Data = strings.Join(data, "\n")
				return f, nil
			}
			f = frame{}
			if err == io.EOF {
				return frame{}, io.EOF
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "data":
			data = append(data, value)
		}
		if err == io.EOF {
			if len(data) > 0 {
				f.Data = strings.Join(data, "\n")
				return f, nil
			}
			return frame{}, io.EOF
		}
	}
}
