package utils

import (
	"net/http"
	"strconv"

	"github.com/tmaxmax/go-sse"
)

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SendSSEEvent writes a single event with the given id, name and raw data,
// then flushes. Multi-line data is split into continuation "data:" lines by
// the encoder. The returned error signals a dead client connection.
func SendSSEEvent(w http.ResponseWriter, flusher http.Flusher, id uint64, name, data string) error {
	msg := &sse.Message{
		ID:   sse.ID(strconv.FormatUint(id, 10)),
		Type: sse.Type(name),
	}
	msg.AppendData(data)

	if _, err := msg.WriteTo(w); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
