// Package robot simulates a fleet robot: it synthesizes telemetry on a fixed
// interval and reports it to the monitor.
package robot

import (
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/otelfleet/fleetmon/pkg/fleet"
	"github.com/samber/lo"
)

const (
	FullBattery = 100
	// MinBattery is the floor the simulated battery never drains below.
	MinBattery = 20
	// OperationalThreshold is the level above which the robot reports itself operational.
	OperationalThreshold = 30

	maxDrain    = 3
	maxPosition = 100
)

// Generator produces successive telemetry samples for one robot. It is not
// safe for concurrent use; each robot owns exactly one.
type Generator struct {
	id      string
	rnd     *rand.Rand
	battery int
}

func NewGenerator(id string, rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{
		id:      id,
		rnd:     rnd,
		battery: FullBattery,
	}
}

func (g *Generator) Battery() int {
	return g.battery
}

// Next drains the battery by 1 to 3 points and returns the resulting sample.
func (g *Generator) Next(now time.Time) fleet.Record {
	drain := g.rnd.IntN(maxDrain) + 1
	g.battery = lo.Clamp(g.battery-drain, MinBattery, FullBattery)

	status := fleet.StatusLowBattery
	if g.battery > OperationalThreshold {
		status = fleet.StatusOperational
	}
	battery := g.battery

	return fleet.Record{
		AgentID: g.id,
		Battery: &battery,
		Position: &fleet.Position{
			X: float64(g.rnd.IntN(maxPosition + 1)),
			Y: float64(g.rnd.IntN(maxPosition + 1)),
		},
		Status: status,
		Extra: map[string]json.RawMessage{
			"timestamp": mustJSON(now.UTC().Format(time.RFC3339Nano)),
			"sample_id": mustJSON(uuid.Must(uuid.NewV7()).String()),
		},
	}
}

func mustJSON(s string) json.RawMessage {
	data, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return data
}
