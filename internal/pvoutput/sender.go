package pvoutput

import (
	"time"

	"github.com/gridwatch/energy-monitor/internal/asynchttp"
)

// HTTPRequest is one in-flight exchange as the uploader sees it: polled for
// completion from cooperative ticks, abortable on cancellation.
type HTTPRequest interface {
	Done() bool
	StatusCode() int
	Body() string
	Err() error
	Abort()
}

// Sender issues asynchronous requests.
type Sender interface {
	Send(method, url string, headers map[string]string, body string) (HTTPRequest, error)
}

type asyncSender struct {
	client *asynchttp.Client
}

// NewAsyncSender builds the production sender on the shared async HTTP
// client, with the configured per-request timeout.
func NewAsyncSender(timeout time.Duration) Sender {
	return &asyncSender{client: asynchttp.NewClient(timeout)}
}

func (s *asyncSender) Send(method, url string, headers map[string]string, body string) (HTTPRequest, error) {
	req, err := s.client.Send(method, url, headers, body)
	if err != nil {
		return nil, err
	}
	return req, nil
}
