package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gazelaundry/pkg/calibration"
	"gazelaundry/pkg/config"
	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/stats"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.msgs...)
}

func testConfig() *config.MQTTConfig {
	cfg := config.DefaultConfig().MQTT
	cfg.TopicPrefix = "lab/eyes"
	cfg.QoS = 1
	cfg.FrameRate = config.Duration(time.Hour)
	return &cfg
}

func waitFor(t *testing.T, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Timeout waiting for: %s", msg)
}

func run(t *testing.T, p *Publisher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestPublisher_Topics(t *testing.T) {
	client := &fakeClient{}
	tr := stats.New()
	p := New(client, testConfig(), WithStats(tr))
	run(t, p)

	p.PublishFrame(gaze.Frame{GazePoint: gaze.Point{X: 10, Y: 20}, IPD: 0.1})
	p.PublishFrame(gaze.Frame{GazePoint: gaze.Point{X: 11, Y: 21}}) // rate limited
	p.PublishTracking(true)
	o := calibration.Outcome{RunID: uuid.New(), Success: true, Quality: calibration.Quality{Rating: 4, Label: "good"}}
	require.NoError(t, p.RecordCalibration(context.Background(), o))

	waitFor(t, func() bool { return len(client.sent()) == 3 }, "three messages")
	msgs := client.sent()

	assert.Equal(t, "lab/eyes/frame", msgs[0].topic)
	assert.False(t, msgs[0].retained)
	assert.Equal(t, byte(1), msgs[0].qos)
	var f gaze.Frame
	require.NoError(t, json.Unmarshal(msgs[0].payload, &f))
	assert.Equal(t, gaze.Point{X: 10, Y: 20}, f.GazePoint)

	assert.Equal(t, "lab/eyes/tracking", msgs[1].topic)
	assert.True(t, msgs[1].retained)
	var tm TrackingMessage
	require.NoError(t, json.Unmarshal(msgs[1].payload, &tm))
	assert.True(t, tm.Tracking)

	assert.Equal(t, "lab/eyes/calibration", msgs[2].topic)
	assert.True(t, msgs[2].retained)
	var got calibration.Outcome
	require.NoError(t, json.Unmarshal(msgs[2].payload, &got))
	assert.Equal(t, o.RunID, got.RunID)
	assert.Equal(t, "good", got.Label)

	waitFor(t, func() bool { return tr.Snapshot()[stats.StreamMQTT].Accepted == 3 }, "accepted count")
	assert.Equal(t, int64(3), tr.Snapshot()[stats.StreamMQTT].Received)
}

func TestPublisher_PublishError(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	tr := stats.New()
	p := New(client, testConfig(), WithStats(tr))
	run(t, p)

	p.PublishTracking(false)
	waitFor(t, func() bool { return tr.Snapshot()[stats.StreamMQTT].Failures == 1 }, "failure count")
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	client := &fakeClient{}
	tr := stats.New()
	p := New(client, testConfig(), WithStats(tr))
	// Not running: the queue fills up.
	for i := 0; i < queueSize; i++ {
		p.PublishTracking(i%2 == 0)
	}
	err := p.RecordCalibration(context.Background(), calibration.Outcome{RunID: uuid.New()})
	assert.Error(t, err)
	assert.Equal(t, int64(1), tr.Snapshot()[stats.StreamMQTT].Dropped)
	assert.Empty(t, client.sent())
}

func TestTopic_NoPrefix(t *testing.T) {
	cfg := testConfig()
	cfg.TopicPrefix = ""
	p := New(&fakeClient{}, cfg)
	assert.Equal(t, "frame", p.Topic(TopicFrame))
}
