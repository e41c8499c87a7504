package syncagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hyperlocal/internal/domain"

	"github.com/gorilla/websocket"
)

// Client talks to a running server: REST for snapshots, websocket for events.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger,
	}
}

func (c *Client) Fetch(ctx context.Context) ([]domain.Incident, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/incidents", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch incidents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch incidents: status %d: %s", resp.StatusCode, body)
	}

	var out domain.ListIncidentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Incidents, nil
}

func (c *Client) Dial(ctx context.Context) (Stream, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return &wsStream{conn: conn, logger: c.logger}, nil
}

type wsStream struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

// Next skips frames it cannot decode, such as event kinds from a newer server.
func (s *wsStream) Next(ctx context.Context) (domain.Event, error) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return domain.Event{}, ctx.Err()
			}
			return domain.Event{}, err
		}
		var ev domain.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Warn("skipping undecodable frame", slog.Any("error", err))
			continue
		}
		return ev, nil
	}
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
