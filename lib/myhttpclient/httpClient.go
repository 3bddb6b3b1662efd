package myhttpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// External calls must never hang indefinitely: after the timeout the call is
// treated as a failure.
const timeout = 30 * time.Second

type realClient struct {
	client *http.Client
}

func newRealClient() HTTPSender {
	return &realClient{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c realClient) Send(ctx context.Context, method string, url string, body []byte) (int, []byte, error) {
	return c.send(ctx, method, url, bytes.NewReader(body), "application/json")
}

func (c realClient) SendForm(ctx context.Context, method string, url string, values url.Values) (int, []byte, error) {
	return c.send(ctx, method, url, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
}

func (c realClient) send(ctx context.Context, method string, url string, body io.Reader, contentType string) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, []byte{}, fmt.Errorf("error creating http request for %s %s: %s", method, url, err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, []byte{}, fmt.Errorf("error sending %s %s: %s", method, url, err)
	}

	defer httpResp.Body.Close()

	respPayload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return 0, []byte{}, fmt.Errorf("error reading response %s %s: %s", method, url, err)
	}

	return httpResp.StatusCode, respPayload, nil
}
