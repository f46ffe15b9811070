package fleet_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/otelfleet/fleetmon/pkg/fleet"
	fleetsvc "github.com/otelfleet/fleetmon/pkg/services/fleet"
	"github.com/otelfleet/fleetmon/pkg/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFleetServer_Health(t *testing.T) {
	env := testutil.NewTestEnv(t)

	status, header, body := env.GetText("/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.JSONEq(t, `{"status":"healthy","service":"fleet-monitor"}`, body)
}

func TestFleetServer_IngestAndFleet(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	env := testutil.NewTestEnvWithStore(t, fleet.NewStoreWithClock(func() time.Time { return now }))

	require.Equal(t, http.StatusOK, env.PostIngest(`{"robot_id":"r1","battery":88,"status":"operational","position":{"x":3,"y":4},"timestamp":"robot clock"}`))
	require.Equal(t, http.StatusOK, env.PostIngest(`{"robot_id":"r2","battery":22,"status":"low_battery"}`))

	status, _, body := env.GetText("/fleet")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{
		"total_robots": 2,
		"operational": 1,
		"low_battery": 1,
		"timestamp": "2026-05-04T10:30:00Z",
		"robots": {
			"r1": {
				"robot_id": "r1",
				"battery": 88,
				"status": "operational",
				"position": {"x": 3, "y": 4},
				"timestamp": "robot clock",
				"last_seen": "2026-05-04T10:30:00Z"
			},
			"r2": {
				"robot_id": "r2",
				"battery": 22,
				"status": "low_battery",
				"last_seen": "2026-05-04T10:30:00Z"
			}
		}
	}`, body)
}

func TestFleetServer_IngestAcknowledges(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp, err := env.HTTPServer.Client().Post(env.BaseURL+"/ingest", "application/json", strings.NewReader(`{"robot_id":"r1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ack fleetsvc.IngestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.True(t, ack.Accepted)
}

func TestFleetServer_IngestWithoutID(t *testing.T) {
	env := testutil.NewTestEnv(t)

	require.Equal(t, http.StatusOK, env.PostIngest(`{"battery":90,"status":"operational"}`))
	require.Equal(t, http.StatusOK, env.PostIngest(`{"battery":45,"status":"low_battery"}`))

	got := env.GetFleet()
	require.Len(t, got.Robots, 1)
	rec := got.Robots[fleet.UnknownAgentID]
	assert.Equal(t, fleet.UnknownAgentID, rec.AgentID)
	assert.Equal(t, 45, *rec.Battery)
	assert.Equal(t, 0, got.Operational)
	assert.Equal(t, 1, got.LowBattery)
}

func TestFleetServer_IngestRejectsMalformed(t *testing.T) {
	env := testutil.NewTestEnv(t)

	for _, body := range []string{
		`{"robot_id":`,
		`not json`,
		`[1,2,3]`,
		`"robot"`,
		``,
		`{"robot_id":"a","status":"operational"} not json at all`,
		`{"robot_id":"a"}{"robot_id":"b"}`,
		`{"robot_id":"a"} 42`,
	} {
		assert.Equal(t, http.StatusBadRequest, env.PostIngest(body), body)
	}
	assert.Equal(t, 0, env.GetFleet().TotalRobots)
}

func TestFleetServer_IngestAllowsTrailingWhitespace(t *testing.T) {
	env := testutil.NewTestEnv(t)

	assert.Equal(t, http.StatusOK, env.PostIngest("{\"robot_id\":\"a\"}\n\t \n"))
	assert.Equal(t, 1, env.Store.Counts().Total)
}

func TestFleetServer_IngestTooLarge(t *testing.T) {
	env := testutil.NewTestEnv(t)

	big := fmt.Sprintf(`{"robot_id":"r1","blob":"%s"}`, strings.Repeat("a", 1<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, env.PostIngest(big))
	assert.Equal(t, 0, env.Store.Counts().Total)
}

func TestFleetServer_IngestWrongMethod(t *testing.T) {
	env := testutil.NewTestEnv(t)

	status, _, _ := env.GetText("/ingest")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestFleetServer_Metrics(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.PostIngest(`{"robot_id":"a","status":"operational"}`)
	env.PostIngest(`{"robot_id":"b","status":"operational"}`)
	env.PostIngest(`{"robot_id":"c","status":"degraded"}`)

	status, header, body := env.GetText("/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(header.Get("Content-Type"), "text/plain"))

	lines := strings.Split(body, "\n")
	assert.Contains(t, lines, "fleet_robots_total 3")
	assert.Contains(t, lines, "fleet_robots_operational 2")
}

func TestFleetServer_ConcurrentIngestAndRead(t *testing.T) {
	env := testutil.NewTestEnv(t)
	client := env.HTTPServer.Client()
	const robots = 100

	var wg sync.WaitGroup
	for i := 0; i < robots; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := fleet.StatusLowBattery
			if i%2 == 0 {
				status = fleet.StatusOperational
			}
			body := fmt.Sprintf(`{"robot_id":"robot-%d","battery":%d,"status":%q}`, i, i, status)
			resp, err := client.Post(env.BaseURL+"/ingest", "application/json", bytes.NewBufferString(body))
			if !assert.NoError(t, err) {
				return
			}
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}(i)
	}
	for r := 0; r < 5; r++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				resp, err := client.Get(env.BaseURL + "/fleet")
				if !assert.NoError(t, err) {
					return
				}
				var got fleetsvc.FleetResponse
				assert.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
				resp.Body.Close()
				assert.Equal(t, len(got.Robots), got.TotalRobots)
				assert.Equal(t, got.TotalRobots-got.Operational, got.LowBattery)
			}
		}()
		go func() {
			defer wg.Done()
			resp, err := client.Get(env.BaseURL + "/health")
			if !assert.NoError(t, err) {
				return
			}
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}()
	}
	wg.Wait()

	got := env.GetFleet()
	assert.Equal(t, robots, got.TotalRobots)
	assert.Equal(t, robots/2, got.Operational)
	assert.Equal(t, robots/2, got.LowBattery)
}

func TestNewFleetResponse(t *testing.T) {
	snap := fleet.Snapshot{
		Robots:  map[string]fleet.Record{"a": {AgentID: "a", Status: "operational"}, "b": {AgentID: "b"}},
		Counts:  fleet.Counts{Total: 2, Operational: 1},
		TakenAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 7200)),
	}
	resp := fleetsvc.NewFleetResponse(snap)
	assert.Equal(t, 2, resp.TotalRobots)
	assert.Equal(t, 1, resp.Operational)
	assert.Equal(t, 1, resp.LowBattery)
	assert.Equal(t, "2026-01-02T01:04:05Z", resp.Timestamp)
}
