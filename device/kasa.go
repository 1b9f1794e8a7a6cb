package device

import (
	"context"
	"fmt"
)

// KasaConfig maps logical device ids to plug addresses on the local network.
type KasaConfig struct {
	Bridge  BridgeConfig          `yaml:"bridge"`
	Devices map[string]KasaDevice `yaml:"devices" validate:"required,dive"`
}

type KasaDevice struct {
	IP string `yaml:"ip" validate:"required,ip"`
}

// Kasa drives TP-Link Kasa smart plugs through the local bridge.
type Kasa struct {
	cfg    KasaConfig
	bridge *bridge
}

func NewKasa(cfg KasaConfig) *Kasa {
	return &Kasa{cfg: cfg, bridge: newBridge("kasa", cfg.Bridge)}
}

func (k *Kasa) addr(deviceID string) (string, error) {
	d, ok := k.cfg.Devices[deviceID]
	if !ok {
		return "", fmt.Errorf("kasa: unknown device %q", deviceID)
	}
	return d.IP, nil
}

func (k *Kasa) TurnOn(ctx context.Context, deviceID string) error {
	ip, err := k.addr(deviceID)
	if err != nil {
		return err
	}
	return k.bridge.post(ctx, "/kasa/plug/on", map[string]string{"ip": ip}, nil)
}

func (k *Kasa) TurnOff(ctx context.Context, deviceID string) error {
	ip, err := k.addr(deviceID)
	if err != nil {
		return err
	}
	return k.bridge.post(ctx, "/kasa/plug/off", map[string]string{"ip": ip}, nil)
}

func (k *Kasa) State(ctx context.Context, deviceID string) (bool, error) {
	ip, err := k.addr(deviceID)
	if err != nil {
		return false, err
	}
	var out struct {
		IsOn bool `json:"is_on"`
	}
	if err := k.bridge.get(ctx, "/kasa/plug/state?ip="+ip, &out); err != nil {
		return false, err
	}
	return out.IsOn, nil
}
