package mqtt

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockToken implements mqtt.Token for testing
type mockToken struct {
	err  error
	done chan struct{}
}

func newMockToken(err error) *mockToken {
	t := &mockToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *mockToken) Wait() bool { return true }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *mockToken) Error() error { return t.err }
func (t *mockToken) Done() <-chan struct{} { return t.done }

// mockClient implements mqtt.Client for testing
type mockClient struct {
	mu           sync.Mutex
	connected    atomic.Bool
	connectErr   error
	subscribeErr error
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	disconnected bool
}

func newMockClient() *mockClient {
	return &mockClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockClient) Connect() mqtt.Token {
	if m.connectErr == nil {
		m.connected.Store(true)
	}
	return newMockToken(m.connectErr)
}

func (m *mockClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
	m.connected.Store(false)
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.mu.Lock()
	handler := m.handlers[topic]
	m.mu.Unlock()

	if handler != nil {
		data, _ := payload.([]byte)
		handler(m, &mockMessage{topic: topic, payload: data, retained: retained, qos: qos})
	}
	return newMockToken(nil)
}

func (m *mockClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	if m.subscribeErr != nil {
		return newMockToken(m.subscribeErr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = callback
	return newMockToken(nil)
}

func (m *mockClient) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return newMockToken(errors.New("not supported"))
}

func (m *mockClient) Unsubscribe(topics ...string) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, topic := range topics {
		delete(m.handlers, topic)
	}
	m.unsubscribed = append(m.unsubscribed, topics...)
	return newMockToken(nil)
}

func (m *mockClient) AddRoute(_ string, _ mqtt.MessageHandler) {}
func (m *mockClient) IsConnected() bool { return m.connected.Load() }
func (m *mockClient) IsConnectionOpen() bool { return m.connected.Load() }
func (m *mockClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (m *mockClient) subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[topic]
	return ok
}

// mockMessage implements mqtt.Message for testing
type mockMessage struct {
	topic    string
	payload  []byte
	retained bool
	qos      byte
}

func (m *mockMessage) Duplicate() bool { return false }
func (m *mockMessage) Qos() byte { return m.qos }
func (m *mockMessage) Retained() bool { return m.retained }
func (m *mockMessage) Topic() string { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 1 }
func (m *mockMessage) Payload() []byte { return m.payload }
func (m *mockMessage) Ack() {}
