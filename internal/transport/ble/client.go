// Package ble implements the gateway's remote BLE adapter: an HTTP client
// speaking the local BLE service's contract (spec.md §6) plus the
// connection state machine and reconnect ladder of spec.md §4.4. The
// gateway always uses this remote adapter; the local BlueZ process is an
// external collaborator specified only by its wire contract.
package ble

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/model"
	protoble "github.com/DK5EN/mcapp-gateway/internal/proto/ble"
	"github.com/DK5EN/mcapp-gateway/internal/proto/meshcom"
	"github.com/DK5EN/mcapp-gateway/internal/router"
)

// State is a connection-state-machine state (spec.md §4.4).
type State string

const (
	StateDisconnected  State = "DISCONNECTED"
	StateConnecting    State = "CONNECTING"
	StateConnected     State = "CONNECTED"
	StateDisconnecting State = "DISCONNECTING"
	StateError         State = "ERROR"
)

// reconnectLadderSeconds is the reconnect backoff ladder (spec.md §4.4).
var reconnectLadderSeconds = []int{5, 10, 20, 60}

// Client is the remote BLE adapter.
type Client struct {
	log        *zap.Logger
	router     *router.Router
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu             sync.Mutex
	state          State
	lastErr        error
	userDisconnect bool
	gpsLat, gpsLon float64
	gpsValid       bool
}

// New constructs a remote BLE client bound to the local BLE service's base
// URL (e.g. from MCAPP_BLE_URL).
func New(log *zap.Logger, r *router.Router, baseURL, apiKey string) *Client {
	c := &Client{
		log:        log.Named("ble"),
		router:     r,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		state:      StateDisconnected,
	}
	r.RegisterProtocol("ble", c)
	r.Subscribe(router.TopicBLEMessage, c.onOutbound)
	return c
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.router.Publish("ble", router.TopicBLEStatus, s)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = *strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	// BLEBusy: the local service returns 409 while mid-operation; retry
	// once after 1.5s per spec.md §7.
	if resp.StatusCode == http.StatusConflict {
		resp.Body.Close()
		time.Sleep(1500 * time.Millisecond)
		retry := req.Clone(ctx)
		if req.GetBody != nil {
			if retry.Body, err = req.GetBody(); err != nil {
				return nil, err
			}
		}
		return c.httpClient.Do(retry)
	}
	return resp, nil
}

// Connect drives the DISCONNECTED -> CONNECTING -> CONNECTED transition and
// its associated hello/time-sync/register-query handshake (spec.md §4.4).
func (c *Client) Connect(ctx context.Context, deviceAddress string) error {
	c.mu.Lock()
	c.userDisconnect = false
	c.mu.Unlock()

	c.setState(StateConnecting)

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/ble/connect", map[string]string{"device_address": deviceAddress})
	if err != nil {
		c.setState(StateError)
		return fmt.Errorf("ble: connect request: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.setState(StateError)
		return fmt.Errorf("ble: connect failed with status %d", resp.StatusCode)
	}

	if err := c.sendHello(ctx); err != nil {
		c.setState(StateError)
		return err
	}
	time.Sleep(1 * time.Second)

	if err := c.syncTime(ctx); err != nil {
		c.log.Warn("time sync failed", zap.Error(err))
	}

	for _, reg := range []string{"--io", "--tel"} {
		if err := c.queryRegisterWithBackoff(ctx, reg); err != nil {
			c.log.Warn("register query failed", zap.String("register", reg), zap.Error(err))
		}
		time.Sleep(800 * time.Millisecond)
	}

	c.setState(StateConnected)
	return nil
}

func (c *Client) sendHello(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/ble/send", map[string]string{"data_hex": "04102030"})
	if err != nil {
		return fmt.Errorf("ble: hello: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) syncTime(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/ble/settime", map[string]int64{"unix": time.Now().Unix()})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// queryRegisterWithBackoff retries a register query up to 3 times with
// exponential backoff 0.5/1.0/2.0s (spec.md §4.4/§5/§7).
func (c *Client) queryRegisterWithBackoff(ctx context.Context, command string) error {
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := c.doRequest(ctx, http.MethodPost, "/api/ble/send", map[string]string{"command": command})
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return fmt.Errorf("ble: register query %s failed after retries: %w", command, lastErr)
}

// Disconnect marks the disconnect as user-requested, which cancels the
// reconnect ladder (spec.md §4.4), then issues the disconnect request.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.userDisconnect = true
	c.mu.Unlock()
	c.setState(StateDisconnecting)

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/ble/disconnect", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	c.setState(StateDisconnected)
	return nil
}

// RunReconnectLadder watches the connection state and, on an unexpected
// disconnect, retries at 5/10/20/60s, stopping if the user requested the
// disconnect (spec.md §4.4).
func (c *Client) RunReconnectLadder(ctx context.Context, deviceAddress string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if c.State() != StateDisconnected {
			time.Sleep(time.Second)
			continue
		}
		c.mu.Lock()
		userWanted := c.userDisconnect
		c.mu.Unlock()
		if userWanted {
			time.Sleep(time.Second)
			continue
		}
		for _, secs := range reconnectLadderSeconds {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(secs) * time.Second):
			}
			if err := c.Connect(ctx, deviceAddress); err == nil {
				break
			}
			c.mu.Lock()
			userWanted = c.userDisconnect
			c.mu.Unlock()
			if userWanted {
				break
			}
		}
	}
}

// StreamNotifications consumes the local BLE service's SSE notification
// stream and decodes+publishes each frame, per spec.md §4.4 and §6.
func (c *Client) StreamNotifications(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ble/notifications", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ble: notifications stream: %w", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "":
			if dataLine != "" {
				c.handleNotification([]byte(dataLine))
				dataLine = ""
			}
		}
	}
	return scanner.Err()
}

type notificationPayload struct {
	TimestampMS int64  `json:"timestamp_ms"`
	RawBase64   string `json:"raw_base64"`
	RawHex      string `json:"raw_hex"`
	Format      string `json:"format"`
}

func (c *Client) handleNotification(raw []byte) {
	var note notificationPayload
	if err := json.Unmarshal(raw, &note); err != nil {
		c.log.Warn("bad notification envelope", zap.Error(err))
		return
	}

	payload := []byte(note.RawHex)
	switch {
	case protoble.IsRegisterDump(payload):
		dump, err := protoble.DecodeRegisterDump(payload)
		if err != nil {
			c.log.Warn("register dump decode error", zap.Error(err))
			return
		}
		if dump.Type == protoble.TypeG {
			if pos, ok := protoble.TransformGPS(dump); ok {
				c.mu.Lock()
				c.gpsLat, c.gpsLon, c.gpsValid = pos.Lat, pos.Lon, true
				c.mu.Unlock()
			}
		}
		c.router.Publish("ble", router.TopicBLENotification, dump)
	case protoble.IsBinaryFrame(payload):
		frame, err := meshcom.Decode(payload)
		if err != nil {
			c.log.Warn("binary frame decode error", zap.Error(err))
			return
		}
		if !frame.FCSValid {
			c.log.Debug("fcs mismatch, processing anyway", zap.Uint32("msg_id", frame.MsgID))
		}
		c.router.Publish("ble", router.TopicBLENotification, bleFrameToMessage(frame))
	default:
		c.log.Debug("unrecognised notification payload", zap.String("format", note.Format))
	}
}

// bleFrameToMessage decodes a binary MeshCom frame arriving over BLE into
// the router's common message shape, mirroring the UDP adapter's framing
// (spec.md §4.4: "same framing as the UDP path") but tagged as a BLE source.
func bleFrameToMessage(f *meshcom.Frame) model.Message {
	msgID := f.MsgID
	typ := model.TypeMsg
	switch f.SubType {
	case meshcom.SubTypeAck:
		typ = model.TypeAck
	case meshcom.SubTypePosTele:
		typ = model.TypePos
	}
	return model.Message{
		MsgID:       &msgID,
		Dst:         f.Dst,
		Text:        f.Body,
		Type:        typ,
		TimestampMS: int64(f.TimestampMS) * 1000,
		SrcType:     model.TransportBLE,
		Path:        f.Path,
		HWID:        int(f.HWID),
		LoraMod:     int(f.LoraMod),
		MaxHop:      int(f.MaxHop),
		MeshInfo:    int(f.MeshInfo),
	}
}

// CachedGPS returns the last cached GPS fix for use by the weather service
// and on-demand HTTP queries (spec.md §4.4).
func (c *Client) CachedGPS() (lat, lon float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gpsLat, c.gpsLon, c.gpsValid
}

// RequestPosition triggers an on-demand "--pos" query, used by
// /api/weather when no GPS is cached (spec.md §4.4).
func (c *Client) RequestPosition(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/ble/send", map[string]string{"command": "--pos"})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Send implements router.ProtocolSender for outbound ble_message publishes.
func (c *Client) Send(data any) error {
	msg, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("ble: unsupported outbound payload type %T", data)
	}
	resp, err := c.doRequest(context.Background(), http.MethodPost, "/api/ble/send", msg)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) onOutbound(_ string, data any) {
	if err := c.Send(data); err != nil {
		c.log.Error("outbound ble send failed", zap.Error(err))
	}
}
