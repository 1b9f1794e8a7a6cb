package device

import (
	"context"
	"fmt"
)

// TapoConfig carries the cloud account the bridge authenticates with and the
// plug addresses, mirroring the bridge's tapo control surface.
type TapoConfig struct {
	Bridge   BridgeConfig          `yaml:"bridge"`
	Email    string                `yaml:"email" validate:"required,email"`
	Password string                `yaml:"password" validate:"required"`
	Devices  map[string]TapoDevice `yaml:"devices" validate:"required,dive"`
}

type TapoDevice struct {
	IP string `yaml:"ip" validate:"required,ip"`
}

// Tapo drives TP-Link Tapo plugs through the local bridge.
type Tapo struct {
	cfg    TapoConfig
	bridge *bridge
}

func NewTapo(cfg TapoConfig) *Tapo {
	return &Tapo{cfg: cfg, bridge: newBridge("tapo", cfg.Bridge)}
}

func (t *Tapo) payload(deviceID string) (map[string]string, error) {
	d, ok := t.cfg.Devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("tapo: unknown device %q", deviceID)
	}
	return map[string]string{
		"ip":       d.IP,
		"email":    t.cfg.Email,
		"password": t.cfg.Password,
	}, nil
}

func (t *Tapo) TurnOn(ctx context.Context, deviceID string) error {
	body, err := t.payload(deviceID)
	if err != nil {
		return err
	}
	return t.bridge.post(ctx, "/tapo/plug/on", body, nil)
}

func (t *Tapo) TurnOff(ctx context.Context, deviceID string) error {
	body, err := t.payload(deviceID)
	if err != nil {
		return err
	}
	return t.bridge.post(ctx, "/tapo/plug/off", body, nil)
}

func (t *Tapo) State(ctx context.Context, deviceID string) (bool, error) {
	body, err := t.payload(deviceID)
	if err != nil {
		return false, err
	}
	var out struct {
		DeviceOn bool `json:"device_on"`
	}
	if err := t.bridge.post(ctx, "/tapo/plug/state", body, &out); err != nil {
		return false, err
	}
	return out.DeviceOn, nil
}
