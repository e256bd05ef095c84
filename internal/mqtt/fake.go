package mqtt

import (
	"errors"
	"sync"
)

// ErrNotConnected broker 未连接
var ErrNotConnected = errors.New("mqtt broker not connected")

// MemoryBroker 进程内 Broker，用于演示模式和测试
type MemoryBroker struct {
	mu        sync.Mutex
	connected bool
	subs      map[string]MessageHandler
	published []Published
}

// Published 已发布的消息
type Published struct {
	Topic   string
	Payload []byte
}

var _ Broker = (*MemoryBroker)(nil)

// NewMemoryBroker 创建已连接的内存 Broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{connected: true, subs: make(map[string]MessageHandler)}
}

// SetConnected 切换连接状态
func (b *MemoryBroker) SetConnected(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = v
}

func (b *MemoryBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *MemoryBroker) Subscribe(topic string, _ byte, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return ErrNotConnected
	}
	b.subs[topic] = handler
	return nil
}

func (b *MemoryBroker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.subs, t)
	}
	return nil
}

// Publish 同步分发给匹配的订阅者
func (b *MemoryBroker) Publish(topic string, _ byte, _ bool, payload []byte) error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return ErrNotConnected
	}
	b.published = append(b.published, Published{Topic: topic, Payload: append([]byte(nil), payload...)})
	var handlers []MessageHandler
	for filter, h := range b.subs {
		if MatchTopic(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		_ = h(topic, payload)
	}
	return nil
}

// Messages 返回已发布消息的副本
func (b *MemoryBroker) Messages() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.published))
	copy(out, b.published)
	return out
}

// Subscribed 当前订阅的主题数
func (b *MemoryBroker) Subscribed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
