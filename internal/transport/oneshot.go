package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cardlink/cardlink/internal/wire"
)

// Oneshot is a caller-only transport performing one HTTP exchange per call:
// the request is POSTed as JSON and the response body is the matching
// response. There is no push channel, so no events are ever delivered;
// it is unsuitable where card-presence notifications matter.
type Oneshot struct {
	url    string
	client *http.Client
}

var _ Caller = (*Oneshot)(nil)

// NewOneshot creates a one-shot HTTP transport posting to the given URL.
// A nil client uses a default with a 30 second timeout.
func NewOneshot(url string, client *http.Client) *Oneshot {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Oneshot{url: url, client: client}
}

// Call POSTs the request and decodes the response body.
func (o *Oneshot) Call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, ErrTransport.MsgErr("unable to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, ErrTransport.MsgErr("unable to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpRsp, err := o.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimeout.Err(err)
		}
		return nil, ErrTransport.MsgErr("request failed", err)
	}
	defer httpRsp.Body.Close()

	if httpRsp.StatusCode != http.StatusOK {
		return nil, ErrTransport.Msg("unexpected status: " + httpRsp.Status)
	}

	data, err := io.ReadAll(httpRsp.Body)
	if err != nil {
		return nil, ErrTransport.MsgErr("unable to read response", err)
	}
	rsp, err := wire.ParseResponse(data)
	if err != nil {
		return nil, ErrTransport.MsgErr("invalid response", err)
	}
	if rsp.ID != req.ID {
		return nil, ErrTransport.Msg("response id does not match request")
	}
	return rsp, nil
}

// OnEvent is a no-op: one-shot exchanges have no push channel.
func (o *Oneshot) OnEvent(fn func(ev *wire.Event)) {}

// Close is a no-op; each call uses an independent exchange.
func (o *Oneshot) Close() error {
	return nil
}
