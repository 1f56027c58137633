package main

import (
	"fmt"
	"log/slog"

	"gazelaundry/pkg/config"
	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/sensor"
	"gazelaundry/pkg/sensor/mocksensor"
)

// sensorDevice is a sensor the process owns and must release on exit.
type sensorDevice interface {
	sensor.Sensor
	Close() error
}

func newSensor(cfg *config.SensorConfig) (sensorDevice, error) {
	switch cfg.Provider {
	case "mock", "":
		m := cfg.Mock
		slog.Info("Sensor Source: Mock", "width", m.Width, "height", m.Height, "interval", m.SampleInterval.D())
		return mocksensor.New(mocksensor.Config{
			SampleInterval:   m.SampleInterval.D(),
			Resolution:       gaze.Resolution{Width: m.Width, Height: m.Height},
			DropoutRate:      m.DropoutRate,
			Jitter:           m.Jitter,
			OrbitRadius:      m.OrbitRadius,
			OrbitPeriod:      m.OrbitPeriod.D(),
			AverageError:     m.AverageError,
			RefuseActivation: m.RefuseActivation,
		}), nil
	default:
		return nil, fmt.Errorf("unknown sensor provider %q", cfg.Provider)
	}
}
