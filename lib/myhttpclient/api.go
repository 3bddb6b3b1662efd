package myhttpclient

import (
	"context"
	"net/url"
)

//go:generate mockgen -source=api.go -package myhttpclient -destination sender_mock.go HTTPSender
type HTTPSender interface {
	Send(c context.Context, method string, url string, body []byte) (int, []byte, error)
	SendForm(c context.Context, method string, url string, values url.Values) (int, []byte, error)
}

func New() HTTPSender {
	return newRealClient()
}
