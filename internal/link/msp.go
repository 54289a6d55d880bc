package link

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/BrianEstime1/drone-swarm/internal/geo"
	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
	"github.com/BrianEstime1/drone-swarm/internal/vehicle"
)

// MSP v1 message ids used by the link.
const (
	mspRawGPS byte = 106
	mspAnalog byte = 110
	mspSetWP  byte = 209
)

// MSP_SET_WP action codes.
const (
	wpActionWaypoint byte = 1
	wpActionHold     byte = 3
	wpActionRTH      byte = 4
	wpActionLand     byte = 8
)

// gcsWaypoint is the slot flight controllers treat as "go here now"
// rather than part of a stored mission.
const gcsWaypoint byte = 255

// defaultReadTimeout bounds a response wait when the caller's context
// carries no deadline.
const defaultReadTimeout = 500 * time.Millisecond

// maxFrameScan caps how many garbage bytes the reader will skip while
// hunting for a frame header.
const maxFrameScan = 512

// serialPort is the subset of serial.Port the link needs. Tests swap in
// an in-memory implementation.
type serialPort interface {
	io.ReadWriter
	SetReadTimeout(time.Duration) error
	Close() error
}

// MSPLink drives one flight controller over MultiWii Serial Protocol v1.
// A poll issues MSP_RAW_GPS and MSP_ANALOG; waypoints and mode changes
// go out as MSP_SET_WP. The mutex serializes request/response pairs on
// the wire.
type MSPLink struct {
	mu   sync.Mutex
	id   string
	port serialPort
}

// DialMSP opens the serial device for one vehicle.
func DialMSP(id, device string, baud int) (*MSPLink, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	return &MSPLink{id: id, port: port}, nil
}

// Close releases the serial device.
func (l *MSPLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port.Close()
}

// Poll reads GPS and battery state from the flight controller.
func (l *MSPLink) Poll(ctx context.Context) (telemetry.Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyDeadline(ctx)

	gps, err := l.request(mspRawGPS, nil)
	if err != nil {
		return telemetry.Sample{}, fmt.Errorf("raw gps: %w", err)
	}
	analog, err := l.request(mspAnalog, nil)
	if err != nil {
		return telemetry.Sample{}, fmt.Errorf("analog: %w", err)
	}
	return parseSample(gps, analog)
}

// SendWaypoint commands an immediate go-to via the GCS waypoint slot.
// When a heading hint is present it rides along in the first spare
// parameter, in whole degrees.
func (l *MSPLink) SendWaypoint(ctx context.Context, pt geo.Point, headingDeg *float64) error {
	var p1 uint16
	if headingDeg != nil {
		p1 = uint16(*headingDeg)
	}
	return l.sendWP(ctx, wpActionWaypoint, pt, p1)
}

// SendMode maps flight modes onto MSP_SET_WP action codes. Hold and
// land act at the vehicle's current position, so no coordinates are
// sent; return-to-launch needs none either.
func (l *MSPLink) SendMode(ctx context.Context, m vehicle.Mode) error {
	var action byte
	switch m {
	case vehicle.ModeHold:
		action = wpActionHold
	case vehicle.ModeReturnToLaunch:
		action = wpActionRTH
	case vehicle.ModeLand:
		action = wpActionLand
	default:
		return fmt.Errorf("mode %q not commandable over msp", m)
	}
	return l.sendWP(ctx, action, geo.Point{}, 0)
}

func (l *MSPLink) sendWP(ctx context.Context, action byte, pt geo.Point, p1 uint16) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyDeadline(ctx)

	payload := encodeSetWP(action, pt, p1)
	// The controller acks MSP_SET_WP with an empty frame of the same id.
	if _, err := l.request(mspSetWP, payload); err != nil {
		return fmt.Errorf("set wp: %w", err)
	}
	return nil
}

// applyDeadline converts a context deadline into a serial read timeout.
// Caller holds l.mu.
func (l *MSPLink) applyDeadline(ctx context.Context) {
	timeout := defaultReadTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			timeout = remaining
		}
	}
	_ = l.port.SetReadTimeout(timeout)
}

// request writes one frame and reads the matching response. Caller
// holds l.mu.
func (l *MSPLink) request(cmd byte, payload []byte) ([]byte, error) {
	if _, err := l.port.Write(encodeFrame(cmd, payload)); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return readFrame(l.port, cmd)
}

// encodeFrame builds a request frame: $M< size cmd payload checksum,
// checksum being the XOR of size, cmd, and payload bytes.
func encodeFrame(cmd byte, payload []byte) []byte {
	frame := make([]byte, 0, 6+len(payload))
	frame = append(frame, '$', 'M', '<', byte(len(payload)), cmd)
	frame = append(frame, payload...)
	crc := byte(len(payload)) ^ cmd
	for _, b := range payload {
		crc ^= b
	}
	return append(frame, crc)
}

// readFrame scans for a response header, then validates length, id, and
// checksum. A '!' direction byte is a controller-side rejection.
func readFrame(r io.Reader, wantCmd byte) ([]byte, error) {
	var scanned int
	for {
		if scanned++; scanned > maxFrameScan {
			return nil, fmt.Errorf("no frame header within %d bytes", maxFrameScan)
		}
		b, err := readByte(r)
		if err != nil {
			return nil, err
		}
		if b != '$' {
			continue
		}
		if b, err = readByte(r); err != nil {
			return nil, err
		}
		if b != 'M' {
			continue
		}
		if b, err = readByte(r); err != nil {
			return nil, err
		}
		if b == '!' {
			return nil, fmt.Errorf("controller rejected command %d", wantCmd)
		}
		if b != '>' {
			continue
		}
		break
	}

	size, err := readByte(r)
	if err != nil {
		return nil, err
	}
	cmd, err := readByte(r)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	crc, err := readByte(r)
	if err != nil {
		return nil, err
	}

	want := size ^ cmd
	for _, b := range payload {
		want ^= b
	}
	if crc != want {
		return nil, fmt.Errorf("checksum mismatch on command %d", cmd)
	}
	if cmd != wantCmd {
		return nil, fmt.Errorf("response id %d, want %d", cmd, wantCmd)
	}
	return payload, nil
}

// readByte reads a single byte. go.bug.st/serial signals a read timeout
// as a zero-length read with no error, which surfaces here as ErrTimeout.
func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	n, err := r.Read(b[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	return b[0], nil
}

// parseSample decodes MSP_RAW_GPS and MSP_ANALOG payloads.
//
// RAW_GPS: fix u8, sats u8, lat i32 1e-7 deg, lon i32 1e-7 deg,
// alt u16 m, speed u16 cm/s, course u16 0.1 deg.
// ANALOG: vbat u8 0.1 V, drawn u16 mAh, rssi u16, amps u16.
func parseSample(gps, analog []byte) (telemetry.Sample, error) {
	if len(gps) < 16 {
		return telemetry.Sample{}, fmt.Errorf("raw gps payload %d bytes, want 16", len(gps))
	}
	if len(analog) < 1 {
		return telemetry.Sample{}, fmt.Errorf("analog payload empty")
	}
	return telemetry.Sample{
		Position: geo.Point{
			Lat: float64(int32(binary.LittleEndian.Uint32(gps[2:6]))) / 1e7,
			Lon: float64(int32(binary.LittleEndian.Uint32(gps[6:10]))) / 1e7,
			Alt: float64(binary.LittleEndian.Uint16(gps[10:12])),
		},
		HeadingDeg: float64(binary.LittleEndian.Uint16(gps[14:16])) / 10,
		SpeedMPS:   float64(binary.LittleEndian.Uint16(gps[12:14])) / 100,
		BatteryV:   float64(analog[0]) / 10,
		Satellites: int(gps[1]),
		GPSFix:     gps[0] != 0,
		Time:       time.Now(),
	}, nil
}

// encodeSetWP builds an MSP_SET_WP payload: wp u8, action u8, lat i32,
// lon i32, alt i32 cm, p1 u16, p2 u16, p3 u16, flag u8.
func encodeSetWP(action byte, pt geo.Point, p1 uint16) []byte {
	payload := make([]byte, 21)
	payload[0] = gcsWaypoint
	payload[1] = action
	binary.LittleEndian.PutUint32(payload[2:6], uint32(int32(pt.Lat*1e7)))
	binary.LittleEndian.PutUint32(payload[6:10], uint32(int32(pt.Lon*1e7)))
	binary.LittleEndian.PutUint32(payload[10:14], uint32(int32(pt.Alt*100)))
	binary.LittleEndian.PutUint16(payload[14:16], p1)
	return payload
}
