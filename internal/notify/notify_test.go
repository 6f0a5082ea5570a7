package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/timetabler/pkg/model"
	"github.com/limaJavier/timetabler/pkg/repair"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type mockClient struct {
	published    []published
	err          error
	disconnected bool
}

func (m *mockClient) IsConnected() bool  { return true }
func (m *mockClient) Disconnect(_ uint) { m.disconnected = true }
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload any) mqtt.Token {
	m.published = append(m.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return &mockToken{err: m.err}
}

type mockToken struct {
	err error
}

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *mockToken) Error() error                     { return t.err }
func (t *mockToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

type recordingNotifier struct {
	notices []Notice
	err     error
}

func (r *recordingNotifier) Notify(_ context.Context, notice Notice) error {
	r.notices = append(r.notices, notice)
	return r.err
}

func withMockClient(t *testing.T, client *mockClient) {
	t.Helper()
	original := newMQTTClient
	newMQTTClient = func(MQTTConfig) (Client, error) { return client, nil }
	t.Cleanup(func() { newMQTTClient = original })
}

func TestMQTTNotifierPublishes(t *testing.T) {
	//** Arrange
	client := &mockClient{}
	withMockClient(t, client)
	notifier, err := NewMQTTNotifier(MQTTConfig{Broker: "tcp://localhost:1883", QoS: 1})
	require.NoError(t, err)
	notice := Notice{Teacher: "T3", TimetableId: "tt", Version: 2, Reason: "T1 absent"}

	//** Act
	err = notifier.Notify(context.Background(), notice)
	notifier.Close()

	//** Assert
	require.NoError(t, err)
	require.Len(t, client.published, 1)
	assert.Equal(t, "timetabler/notices/T3", client.published[0].topic)
	assert.Equal(t, byte(1), client.published[0].qos)
	var decoded Notice
	require.NoError(t, json.Unmarshal(client.published[0].payload, &decoded))
	assert.Equal(t, notice.Teacher, decoded.Teacher)
	assert.Equal(t, 2, decoded.Version)
	assert.True(t, client.disconnected)
}

func TestMQTTNotifierReportsPublishErrors(t *testing.T) {
	//** Arrange
	withMockClient(t, &mockClient{err: errors.New("broker gone")})
	notifier, err := NewMQTTNotifier(MQTTConfig{Broker: "tcp://localhost:1883", Prefix: "school"})
	require.NoError(t, err)

	//** Act
	err = notifier.Notify(context.Background(), Notice{Teacher: "T1"})

	//** Assert
	assert.ErrorContains(t, err, "broker gone")
	assert.Equal(t, "school/T1", notifier.Topic("T1"))
}

func TestMQTTConfigValidate(t *testing.T) {
	assert.Error(t, MQTTConfig{QoS: 3}.Validate())
	assert.Error(t, MQTTConfig{Prefix: "school/#"}.Validate())
	assert.NoError(t, MQTTConfig{Prefix: "school", QoS: 2}.Validate())
}

func TestMultiJoinsErrors(t *testing.T) {
	//** Arrange
	first := &recordingNotifier{err: errors.New("first failed")}
	second := &recordingNotifier{}
	multi := Multi{first, second, NewLogNotifier(nil)}

	//** Act
	err := multi.Notify(context.Background(), Notice{Teacher: "T1"})

	//** Assert
	assert.ErrorContains(t, err, "first failed")
	assert.Len(t, first.notices, 1)
	assert.Len(t, second.notices, 1)
}

func TestNotices(t *testing.T) {
	//** Arrange
	timetable := &model.Timetable{Id: "tt", Version: 2}
	before := model.Assignment{Id: "TT-001", Session: "C1/1", Slot: 0, Room: "R1", Teacher: "T1"}
	after := model.Assignment{Id: "TT-001", Session: "C1/1", Slot: 0, Room: "R1", Teacher: "T3", Substitute: true}
	outcome := &repair.Outcome{
		Status:    repair.StatusRepaired,
		Delta:     repair.TeacherAbsence{Teacher: "T1", Date: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)},
		Timetable: timetable,
		Changes:   []repair.Change{{Before: before, After: after}},
	}
	now := time.Now()

	//** Act
	notices := Notices(outcome, now)

	//** Assert
	require.Len(t, notices, 2)
	assert.Equal(t, "T1", notices[0].Teacher)
	assert.Equal(t, []model.Assignment{before}, notices[0].Sessions)
	assert.Equal(t, "T3", notices[1].Teacher)
	assert.Equal(t, []model.Assignment{after}, notices[1].Sessions)
	assert.Equal(t, 2, notices[1].Version)
	assert.Empty(t, Notices(&repair.Outcome{Status: repair.StatusUnresolvable}, now))
}
