package dataflow

import (
	"fmt"

	"github.com/shaiso/Spectra/internal/domain"
)

// Channel — упорядоченный поток token'ов между стадиями.
//
// Дисциплины (domain.ChannelKind):
//   - queue     — один потребитель, каждый элемент вычитывается ровно один раз
//   - fork      — несколько объявленных потребителей, у каждого свой курсор
//   - broadcast — ровно одно значение, которое отдаётся каждому запросу
//     без расходования (first)
//
// Channel не потокобезопасен: все мутации выполняет единственный
// координатор планировщика. Это и делает счётчики barrier/broadcast
// надёжными без дополнительных блокировок.
type Channel struct {
	name      string
	kind      domain.ChannelKind
	items     []domain.Token
	cursors   map[string]int
	consumers []string
	closed    bool
}

// NewChannel создаёт пустой канал.
func NewChannel(name string, kind domain.ChannelKind) *Channel {
	return &Channel{
		name:    name,
		kind:    kind,
		cursors: make(map[string]int),
	}
}

// Name возвращает имя канала.
func (c *Channel) Name() string { return c.name }

// Kind возвращает дисциплину канала.
func (c *Channel) Kind() domain.ChannelKind { return c.kind }

// Len возвращает количество эмитированных token'ов.
func (c *Channel) Len() int { return len(c.items) }

// Closed возвращает true, если producer завершил эмит.
func (c *Channel) Closed() bool { return c.closed }

// Subscribe регистрирует потребителя.
// У queue канала может быть только один потребитель.
func (c *Channel) Subscribe(consumer string) error {
	if _, ok := c.cursors[consumer]; ok {
		return nil
	}
	if c.kind == domain.ChannelQueue && len(c.consumers) > 0 {
		return newProtocolError(c.name, consumer,
			fmt.Sprintf("queue already consumed by %s", c.consumers[0]), ErrConsumerConflict)
	}
	c.cursors[consumer] = 0
	c.consumers = append(c.consumers, consumer)
	return nil
}

// Emit добавляет token в конец канала.
func (c *Channel) Emit(t domain.Token) error {
	if c.closed {
		return newProtocolError(c.name, "", "", ErrEmitAfterClose)
	}
	if c.kind == domain.ChannelBroadcast && len(c.items) > 0 {
		return newProtocolError(c.name, "",
			fmt.Sprintf("already holds %s", describe(c.items[0])), ErrBroadcastOverflow)
	}
	c.items = append(c.items, t)
	return nil
}

// Close помечает канал как завершённый: новых token'ов не будет.
func (c *Channel) Close() {
	c.closed = true
}

// Drain возвращает token'ы, ещё не прочитанные потребителем, и сдвигает его курсор.
// Для broadcast канала используйте First.
func (c *Channel) Drain(consumer string) ([]domain.Token, error) {
	if c.kind == domain.ChannelBroadcast {
		return nil, newProtocolError(c.name, consumer, "broadcast channel must be read with first", ErrConsumerConflict)
	}
	pos, ok := c.cursors[consumer]
	if !ok {
		return nil, newProtocolError(c.name, consumer, "consumer is not subscribed", ErrConsumerConflict)
	}
	if pos >= len(c.items) {
		return nil, nil
	}
	out := make([]domain.Token, len(c.items)-pos)
	copy(out, c.items[pos:])
	c.cursors[consumer] = len(c.items)
	return out, nil
}

// Exhausted возвращает true, если канал закрыт и потребитель прочитал всё.
func (c *Channel) Exhausted(consumer string) bool {
	if !c.closed {
		return false
	}
	if c.kind == domain.ChannelBroadcast {
		return true
	}
	return c.cursors[consumer] >= len(c.items)
}

// First возвращает единственное значение broadcast канала, не расходуя его.
//
// ok=false и err=nil означают, что значение ещё не эмитировано.
// Закрытый пустой канал — нарушение протокола.
func (c *Channel) First() (t domain.Token, ok bool, err error) {
	if c.kind != domain.ChannelBroadcast {
		return domain.Token{}, false, newProtocolError(c.name, "", "first on a non-broadcast channel", ErrConsumerConflict)
	}
	if len(c.items) == 0 {
		if c.closed {
			return domain.Token{}, false, newProtocolError(c.name, "", "", ErrBroadcastEmpty)
		}
		return domain.Token{}, false, nil
	}
	return c.items[0], true, nil
}

func describe(t domain.Token) string {
	if t.IsAggregate() {
		return fmt.Sprintf("aggregate of %d from %s", len(t.Elements), t.Stage)
	}
	return fmt.Sprintf("%s (sample %s)", t.Path, t.SampleID)
}
