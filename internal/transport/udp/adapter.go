// Package udp implements the UDP transport adapter of spec.md §4.2: it
// binds port 1799, decodes inbound MeshCom frames onto the router's
// mesh_message topic, and serializes outbound udp_message publishes back
// onto the wire.
package udp

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/model"
	"github.com/DK5EN/mcapp-gateway/internal/proto/meshcom"
	"github.com/DK5EN/mcapp-gateway/internal/router"
)

const (
	// Port is the fixed MeshCom UDP port used for both directions.
	Port = 1799

	maxDatagramSize = 2048
)

// Adapter owns the UDP socket and bridges it to the router.
type Adapter struct {
	log        *zap.Logger
	router     *router.Router
	conn       *net.UDPConn
	radioAddr  *net.UDPAddr
	msgIDGen   func() uint32
	done       chan struct{}
}

// New binds the UDP listener. Per spec.md §2, this must succeed before any
// component that could block on BLE is attempted — bind failure is fatal
// (spec.md §7).
func New(log *zap.Logger, r *router.Router, radioHost string, msgIDGen func() uint32) (*Adapter, error) {
	laddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", Port))
	if err != nil {
		return nil, fmt.Errorf("udp: resolve listen addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("udp: bind port %d: %w", Port, err)
	}

	radioAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", radioHost, Port))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("udp: resolve radio addr: %w", err)
	}

	a := &Adapter{
		log:       log.Named("udp"),
		router:    r,
		conn:      conn,
		radioAddr: radioAddr,
		msgIDGen:  msgIDGen,
		done:      make(chan struct{}),
	}
	r.RegisterProtocol("udp", a)
	r.Subscribe(router.TopicUDPMessage, a.onOutbound)
	return a, nil
}

// Run reads datagrams until ctx is cancelled or Close is called.
func (a *Adapter) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		a.conn.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				close(a.done)
				return
			default:
				a.log.Warn("udp read error", zap.Error(err))
				continue
			}
		}
		a.handleDatagram(append([]byte(nil), buf[:n]...))
	}
}

// Close stops the listener. Per spec.md §5 the UDP listener shutdown step
// is bounded at 3 seconds; the caller is responsible for applying that
// timeout around Close/ctx cancellation.
func (a *Adapter) Close() error {
	return a.conn.Close()
}

func (a *Adapter) handleDatagram(data []byte) {
	frame, err := meshcom.Decode(data)
	if err != nil {
		prefix := data
		if len(prefix) > 120 {
			prefix = prefix[:120]
		}
		a.log.Warn("decode error", zap.Error(err), zap.Binary("prefix", prefix))
		return
	}
	if !frame.FCSValid {
		a.log.Debug("fcs mismatch, processing anyway", zap.Uint32("msg_id", frame.MsgID))
	}

	msg := frameToMessage(frame)
	a.router.Publish("udp", router.TopicMeshMessage, msg)
}

func frameToMessage(f *meshcom.Frame) model.Message {
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
		SrcType:     model.TransportLoRa,
		Path:        f.Path,
		HWID:        int(f.HWID),
		LoraMod:     int(f.LoraMod),
		MaxHop:      int(f.MaxHop),
		MeshInfo:    int(f.MeshInfo),
	}
}

// Send implements router.ProtocolSender: encodes and transmits an outbound
// message to the configured radio host.
func (a *Adapter) Send(data any) error {
	msg, ok := data.(model.Message)
	if !ok {
		return fmt.Errorf("udp: unsupported outbound payload type %T", data)
	}

	payloadType := meshcom.PayloadTypeDirect
	if model.IsGroupDst(msg.Dst) {
		payloadType = meshcom.PayloadTypeGroup
	}
	msgID := a.msgIDGen()
	f := &meshcom.Frame{
		SubType:     meshcom.SubTypeText,
		PayloadType: payloadType,
		MsgID:       msgID,
		Dst:         msg.Dst,
		Body:        msg.Text,
		TimestampMS: uint32(time.Now().UnixMilli() / 1000),
	}
	raw := meshcom.Encode(f)
	_, err := a.conn.WriteToUDP(raw, a.radioAddr)
	return err
}

func (a *Adapter) onOutbound(_ string, data any) {
	if err := a.Send(data); err != nil {
		a.log.Error("outbound send failed", zap.Error(err))
	}
}
