package probe

import (
	"context"
	"errors"
	"fmt"

	"gazelaundry/pkg/db"
	"gazelaundry/pkg/sensor"
)

// ErrNoResolution is reported by the sensor probe when the sensor has no
// usable screen size.
var ErrNoResolution = errors.New("sensor reports no screen resolution")

// Database checks that the connection answers and the schema is present.
func Database(d *db.DB) Probe {
	return Probe{
		Name:     "Database",
		Critical: true,
		Check: func(ctx context.Context) error {
			if err := d.PingContext(ctx); err != nil {
				return err
			}
			var n int
			return d.QueryRowContext(ctx, "SELECT count(*) FROM calibration_runs").Scan(&n)
		},
	}
}

// Sensor checks the screen resolution needed to derive frames.
func Sensor(s sensor.Sensor) Probe {
	return Probe{
		Name:     "Sensor",
		Critical: true,
		Check: func(ctx context.Context) error {
			res := s.ScreenResolution()
			if res.Width <= 0 || res.Height <= 0 {
				return fmt.Errorf("%w: %dx%d", ErrNoResolution, res.Width, res.Height)
			}
			return ctx.Err()
		},
	}
}

// Func wraps an arbitrary non-critical check, e.g. the broker connection.
func Func(name string, check CheckFunc) Probe {
	return Probe{Name: name, Check: check}
}
