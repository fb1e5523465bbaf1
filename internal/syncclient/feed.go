package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go-pos-sync/internal/ws"
	apperrors "go-pos-sync/pkg/errors"
	"go-pos-sync/pkg/logger"

	"github.com/fasthttp/websocket"
)

// WSFeed dials the API's /ws change feed.
type WSFeed struct {
	url    string
	token  string
	dialer *websocket.Dialer
	logg   *logger.Logger
}

func NewWSFeed(baseURL, token string, logg *logger.Logger) *WSFeed {
	if logg == nil {
		logg = logger.Nop()
	}
	return &WSFeed{
		url:    FeedURL(baseURL),
		token:  token,
		dialer: websocket.DefaultDialer,
		logg:   logg,
	}
}

// FeedURL maps an http(s) API base to its ws(s) feed endpoint.
func FeedURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func (f *WSFeed) Connect(ctx context.Context) (<-chan ws.Event, error) {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}
	conn, resp, err := f.dialer.DialContext(ctx, f.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, apperrors.Wrap(apperrors.CodeUnauthorized, err, "change feed rejected the session")
		}
		return nil, err
	}

	out := make(chan ws.Event, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var evt ws.Event
			if err := json.Unmarshal(msg, &evt); err != nil {
				f.logg.Warn(ctx, "dropping malformed feed frame")
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
