// Package lora sends rover telemetry over a serial LoRa radio as LoRaWAN unconfirmed
// uplinks: the binary telemetry packet is the encrypted FRMPayload and every frame
// carries a MIC, hex encoded one frame per line.
package lora

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brocaar/lorawan"

	"RoverDrive/internal/device"
	"RoverDrive/internal/model"
	"RoverDrive/internal/parser"
	"RoverDrive/internal/util"
)

// ErrInvalidMIC is returned by Unframe when the frame fails integrity checking.
var ErrInvalidMIC = errors.New("invalid MIC")

// Session holds the ABP session keys and the uplink frame counter.
type Session struct {
	DevAddr lorawan.DevAddr
	AppSKey lorawan.AES128Key
	NwkSKey lorawan.AES128Key
	FPort   uint8
	FCnt    uint32
}

// ParseSession decodes the hex keys in cfg.
func ParseSession(cfg model.LoRaConfig) (Session, error) {
	var s Session
	if err := s.DevAddr.UnmarshalText([]byte(cfg.DevAddr)); err != nil {
		return s, fmt.Errorf("lora.dev_addr: %w", err)
	}
	if err := s.AppSKey.UnmarshalText([]byte(cfg.AppSKey)); err != nil {
		return s, fmt.Errorf("lora.app_skey: %w", err)
	}
	if err := s.NwkSKey.UnmarshalText([]byte(cfg.NwkSKey)); err != nil {
		return s, fmt.Errorf("lora.nwk_skey: %w", err)
	}
	s.FPort = cfg.FPort
	if s.FPort == 0 {
		return s, errors.New("lora.fport 0 is reserved for MAC commands")
	}
	return s, nil
}

// Frame wraps payload in an unconfirmed data uplink and advances the frame counter.
func (s *Session) Frame(payload []byte) ([]byte, error) {
	fport := s.FPort
	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: lorawan.UnconfirmedDataUp,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &lorawan.MACPayload{
			FHDR: lorawan.FHDR{
				DevAddr: s.DevAddr,
				FCnt:    s.FCnt,
			},
			FPort:      &fport,
			FRMPayload: []lorawan.Payload{&lorawan.DataPayload{Bytes: payload}},
		},
	}
	if err := phy.EncryptFRMPayload(s.AppSKey); err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	if err := phy.SetUplinkDataMIC(lorawan.LoRaWAN1_0, 0, 0, 0, s.NwkSKey, s.NwkSKey); err != nil {
		return nil, fmt.Errorf("mic: %w", err)
	}
	b, err := phy.MarshalBinary()
	if err != nil {
		return nil, err
	}
	s.FCnt++
	return b, nil
}

// Unframe checks the MIC of an uplink and returns its decrypted payload and frame counter.
func (s Session) Unframe(frame []byte) ([]byte, uint32, error) {
	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(frame); err != nil {
		return nil, 0, err
	}
	ok, err := phy.ValidateUplinkDataMIC(lorawan.LoRaWAN1_0, 0, 0, 0, s.NwkSKey, s.NwkSKey)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, ErrInvalidMIC
	}
	if err := phy.DecryptFRMPayload(s.AppSKey); err != nil {
		return nil, 0, err
	}
	mac, ok := phy.MACPayload.(*lorawan.MACPayload)
	if !ok || len(mac.FRMPayload) == 0 {
		return nil, 0, errors.New("frame has no payload")
	}
	data, ok := mac.FRMPayload[0].(*lorawan.DataPayload)
	if !ok {
		return nil, 0, errors.New("unexpected payload type")
	}
	return data.Bytes, mac.FHDR.FCnt, nil
}

// Uplink periodically transmits the latest telemetry over a radio device.
type Uplink struct {
	dev      device.Device
	source   func() model.Telemetry
	interval time.Duration

	mu      sync.Mutex
	session Session

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewUplink returns an uplink that reads telemetry from source every interval.
func NewUplink(dev device.Device, s Session, source func() model.Telemetry, interval time.Duration) *Uplink {
	return &Uplink{dev: dev, session: s, source: source, interval: interval, stop: make(chan struct{})}
}

// Send frames and writes one telemetry uplink.
func (u *Uplink) Send() error {
	b, err := parser.EncodeTelemetry(u.source())
	if err != nil {
		return err
	}
	u.mu.Lock()
	frame, err := u.session.Frame(b)
	u.mu.Unlock()
	if err != nil {
		return err
	}
	return u.dev.WriteLine(strings.ToUpper(hex.EncodeToString(frame)))
}

// FCnt returns the next frame counter value.
func (u *Uplink) FCnt() uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.session.FCnt
}

// Start sends telemetry in the background until Stop.
func (u *Uplink) Start() {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		ticker := time.NewTicker(u.interval)
		defer ticker.Stop()
		failing := false
		for {
			select {
			case <-u.stop:
				return
			case <-ticker.C:
			}
			if err := u.Send(); err != nil {
				if !failing {
					util.Warn("[lora] uplink failed: %v", err)
				}
				failing = true
				continue
			}
			failing = false
		}
	}()
}

// Stop ends the background loop and closes the radio.
func (u *Uplink) Stop() {
	select {
	case <-u.stop:
	default:
		close(u.stop)
	}
	u.wg.Wait()
	_ = u.dev.Close()
}

// DecodeLine reverses Send: it parses a hex frame line and returns the telemetry it carries.
func DecodeLine(s Session, line string) (model.Telemetry, uint32, error) {
	frame, err := hex.DecodeString(strings.TrimSpace(line))
	if err != nil {
		return model.Telemetry{}, 0, err
	}
	payload, fcnt, err := s.Unframe(frame)
	if err != nil {
		return model.Telemetry{}, 0, err
	}
	p, err := parser.Decode(payload)
	if err != nil {
		return model.Telemetry{}, 0, err
	}
	if p.Type != parser.TypeTelemetry {
		return model.Telemetry{}, 0, fmt.Errorf("%w: 0x%02x", parser.ErrUnknownPacket, p.Type)
	}
	return p.Telemetry, fcnt, nil
}
