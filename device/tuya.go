package device

import (
	"context"
	"fmt"
)

// TuyaConfig addresses plugs by device id plus the local key the Tuya local
// protocol requires.
type TuyaConfig struct {
	Bridge  BridgeConfig          `yaml:"bridge"`
	Devices map[string]TuyaDevice `yaml:"devices" validate:"required,dive"`
}

type TuyaDevice struct {
	ID       string `yaml:"id" validate:"required"`
	IP       string `yaml:"ip" validate:"required,ip"`
	LocalKey string `yaml:"local_key" validate:"required"`
}

// Tuya drives Tuya-protocol plugs through the local bridge.
type Tuya struct {
	cfg    TuyaConfig
	bridge *bridge
}

func NewTuya(cfg TuyaConfig) *Tuya {
	return &Tuya{cfg: cfg, bridge: newBridge("tuya", cfg.Bridge)}
}

func (t *Tuya) payload(deviceID string) (map[string]string, error) {
	d, ok := t.cfg.Devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("tuya: unknown device %q", deviceID)
	}
	return map[string]string{
		"device_id": d.ID,
		"ip":        d.IP,
		"local_key": d.LocalKey,
	}, nil
}

func (t *Tuya) TurnOn(ctx context.Context, deviceID string) error {
	body, err := t.payload(deviceID)
	if err != nil {
		return err
	}
	return t.bridge.post(ctx, "/tuya/plug/on", body, nil)
}

func (t *Tuya) TurnOff(ctx context.Context, deviceID string) error {
	body, err := t.payload(deviceID)
	if err != nil {
		return err
	}
	return t.bridge.post(ctx, "/tuya/plug/off", body, nil)
}

func (t *Tuya) State(ctx context.Context, deviceID string) (bool, error) {
	body, err := t.payload(deviceID)
	if err != nil {
		return false, err
	}
	var out struct {
		IsOn bool `json:"is_on"`
	}
	if err := t.bridge.post(ctx, "/tuya/plug/state", body, &out); err != nil {
		return false, err
	}
	return out.IsOn, nil
}
