package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/satriahrh/cocoa-fruit/gateway/usecase"
)

var sseHeaders = map[string]string{
	echo.HeaderContentType:  "text/event-stream",
	echo.HeaderCacheControl: "no-cache",
	echo.HeaderConnection:   "keep-alive",
	"X-Accel-Buffering":     "no",
}

// sseSink writes stream events as server-sent events, one `data: <json>`
// frame per event.
type sseSink struct {
	c echo.Context
}

func newSSESink(c echo.Context) *sseSink {
	return &sseSink{c: c}
}

func (s *sseSink) Open() {
	h := s.c.Response().Header()
	for k, v := range sseHeaders {
		h.Set(k, v)
	}
}

func (s *sseSink) Committed() bool {
	return s.c.Response().Committed
}

func (s *sseSink) Send(ev usecase.StreamEvent) error {
	if err := s.c.Request().Context().Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	res := s.c.Response()
	if !res.Committed {
		res.WriteHeader(http.StatusOK)
	}
	if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
		return err
	}
	res.Flush()
	return nil
}

// reset drops the staged stream headers so a structured JSON failure can be
// written instead.
func (s *sseSink) reset() {
	h := s.c.Response().Header()
	for k := range sseHeaders {
		h.Del(k)
	}
}
