package publish

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool {
	return !t.pending
}
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

var _ mqtt.Token = (*fakeToken)(nil)

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu       sync.Mutex
	messages []message
	token    *fakeToken
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic: topic, retained: retained, payload: payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{}
}

func newTestMQTT(c *fakeClient) *MQTT {
	m := NewMQTT(c, Options{
		FixTopic:         "bridge/gps",
		StatusTopic:      "bridge/gps/status",
		Timeout:          time.Second,
		GeohashPrecision: 7,
	})
	m.now = func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC) }
	return m
}

func TestPublishFix(t *testing.T) {
	c := &fakeClient{}
	m := newTestMQTT(c)

	m.OnLocationUpdate(1, 37.7, -122.4, 5.0, 2.5)

	require.Len(t, c.messages, 1)
	msg := c.messages[0]
	assert.Equal(t, "bridge/gps", msg.topic)
	assert.False(t, msg.retained)

	var got FixMessage
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, 37.7, got.Latitude)
	assert.Equal(t, -122.4, got.Longitude)
	assert.Equal(t, 5.0, got.Accuracy)
	assert.Equal(t, 2.5, got.Timestamp)
	assert.Equal(t, "9q8yqxp", got.Geohash)
}

func TestPublishFixWithoutGeohash(t *testing.T) {
	c := &fakeClient{}
	m := newTestMQTT(c)
	m.opts.GeohashPrecision = 0

	m.OnLocationUpdate(1, 1, 2, 3, 4)

	require.Len(t, c.messages, 1)
	assert.JSONEq(t, `{"lat":1,"lon":2,"accuracy":3,"timestamp":4,"geohash":""}`, string(c.messages[0].payload))
}

func TestPublishStatus(t *testing.T) {
	c := &fakeClient{}
	m := newTestMQTT(c)

	m.OnProviderEnabled(3)
	m.OnProviderDisabled(3)
	m.OnPermissionDenied(3)
	m.OnPermissionGranted(3)

	require.Len(t, c.messages, 4)
	want := []string{EventProviderEnabled, EventProviderDisabled, EventPermissionDenied, EventPermissionGrant}
	for i, msg := range c.messages {
		assert.Equal(t, "bridge/gps/status", msg.topic)
		assert.True(t, msg.retained)
		var st Status
		require.NoError(t, json.Unmarshal(msg.payload, &st))
		assert.Equal(t, want[i], st.Event)
		assert.Equal(t, uint64(3), st.Handle)
		assert.Equal(t, "2026-10-19T08:30:00Z", st.Time)
	}
	assert.Contains(t, string(c.messages[0].payload), `"provider":"gps"`)
	assert.NotContains(t, string(c.messages[2].payload), `"provider"`)
}

func TestPublishErrorsAreNotRetried(t *testing.T) {
	c := &fakeClient{token: &fakeToken{err: errors.New("not connected")}}
	m := newTestMQTT(c)

	m.OnLocationUpdate(1, 1, 2, 3, 4)
	m.OnProviderEnabled(1)

	assert.Len(t, c.messages, 2)
}

func TestPublishTimeout(t *testing.T) {
	c := &fakeClient{token: &fakeToken{pending: true}}
	m := newTestMQTT(c)

	err := m.publish("bridge/gps", false, map[string]int{"a": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
