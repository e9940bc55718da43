// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"sketchpad/internal/log"
	"sketchpad/internal/sample"
	"sketchpad/internal/session"
)

// Sender is the packet sink of a Publisher.
type Sender interface {
	Send(data []byte) error
}

// UDPPublisher periodically packs the latest visual state into a binary
// label packet and sends it. Send only records the newest state, so the
// frame loop is never blocked by the network.
type UDPPublisher struct {
	sender   Sender
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	stateMu sync.Mutex
	latest  session.VisualState
	fresh   bool // latest has not been sent yet

	sequenceNum  uint32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates and initializes a new UDPPublisher.
// If the provided interval is invalid (<= 0), it defaults to 33ms (~30Hz).
func NewUDPPublisher(interval time.Duration, sender Sender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		log.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	log.Infof("UDPPublisher: Initializing (Interval: %s, Packet: %d bytes)", interval, PacketSize)
	return &UDPPublisher{
		sender:       sender,
		interval:     interval,
		packetBuffer: bytes.NewBuffer(make([]byte, 0, PacketSize)),
	}, nil
}

// Send records state as the next one to publish.
func (p *UDPPublisher) Send(state session.VisualState) error {
	p.stateMu.Lock()
	p.latest = state
	p.fresh = true
	p.stateMu.Unlock()
	return nil
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warnf("UDPPublisher: Start called but already running.")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	log.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| State             | uint8          | 1            | 0 idle, 1 rec, 2 review |
| Shape             | uint8          | 1            | Base shape index        |
| Labels            | [4]float32     | 16           | y1..y4 targets          |
| Loudness          | float32        | 4            | Current loudness        |
+-----------------------------------------------------------------------------+
*/

// PacketSize is the encoded size of a label packet.
const PacketSize = 4 + 8 + 1 + 1 + 16 + 4

// Packet is the decoded form of a label packet.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	State     uint8
	Shape     uint8
	Labels    [4]float32
	Loudness  float32
}

// EncodePacket appends the packet for state to buf.
func EncodePacket(buf *bytes.Buffer, seq uint32, ts time.Time, state session.VisualState) error {
	l := state.Labels.Continuous()
	pkt := Packet{
		Sequence:  seq,
		Timestamp: ts.UnixNano(),
		State:     uint8(state.State),
		Shape:     uint8(state.Labels.Shape),
		Labels:    [4]float32{float32(l[0]), float32(l[1]), float32(l[2]), float32(l[3])},
		Loudness:  float32(state.Loudness),
	}
	return binary.Write(buf, binary.BigEndian, &pkt)
}

// DecodePacket parses a label packet.
func DecodePacket(data []byte) (Packet, error) {
	var pkt Packet
	if len(data) != PacketSize {
		return pkt, fmt.Errorf("packet is %d bytes, want %d", len(data), PacketSize)
	}
	err := binary.Read(bytes.NewReader(data), binary.BigEndian, &pkt)
	return pkt, err
}

// LabelVector converts a decoded packet back into a label vector.
func (p Packet) LabelVector() sample.LabelVector {
	return sample.LabelVector{
		Y1:    float64(p.Labels[0]),
		Y2:    float64(p.Labels[1]),
		Y3:    float64(p.Labels[2]),
		Y4:    float64(p.Labels[3]),
		Shape: int(p.Shape),
	}
}

// publish sends the latest state if it changed since the last tick.
func (p *UDPPublisher) publish() {
	p.stateMu.Lock()
	if !p.fresh {
		p.stateMu.Unlock()
		return
	}
	state := p.latest
	p.fresh = false
	p.stateMu.Unlock()

	p.sequenceNum++
	p.packetBuffer.Reset()
	if err := EncodePacket(p.packetBuffer, p.sequenceNum, time.Now(), state); err != nil {
		log.Errorf("UDPPublisher: Error packing data into binary buffer: %v", err)
		return
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		log.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	}
}

// Close stops the publisher and closes the sender when it is closable.
func (p *UDPPublisher) Close() error {
	err := p.Stop()
	if c, ok := p.sender.(interface{ Close() error }); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}
