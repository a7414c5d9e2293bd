package dataflow

import (
	"fmt"
	"strings"

	"github.com/shaiso/Spectra/internal/domain"
)

// Collector — barrier, собирающий заранее известное количество token'ов.
//
// Ожидаемое количество задаётся при сборке графа (ширина fan-out).
// Ровно expected элементов дают один агрегатный token в порядке поступления,
// лишний элемент и преждевременное закрытие upstream — нарушения протокола.
type Collector struct {
	channel  string
	stage    string
	sampleID string
	expected int
	items    []domain.Token
	done     bool
}

// NewCollector создаёт barrier на expected элементов.
// sampleID — ключ, которым будет помечен агрегат.
func NewCollector(channel, stage, sampleID string, expected int) *Collector {
	return &Collector{
		channel:  channel,
		stage:    stage,
		sampleID: sampleID,
		expected: expected,
		items:    make([]domain.Token, 0, expected),
	}
}

// Add добавляет элемент. complete=true ровно один раз — когда собран агрегат.
func (c *Collector) Add(t domain.Token) (agg domain.Token, complete bool, err error) {
	if c.done || len(c.items) >= c.expected {
		return domain.Token{}, false, newProtocolError(c.channel, c.stage,
			fmt.Sprintf("expected %d items, got item %d (%s)", c.expected, len(c.items)+1, describe(t)),
			ErrBarrierOverflow)
	}
	c.items = append(c.items, t)
	if len(c.items) < c.expected {
		return domain.Token{}, false, nil
	}
	c.done = true
	return domain.NewAggregate(c.stage, c.sampleID, c.items), true, nil
}

// Close сообщает, что upstream завершил эмит.
func (c *Collector) Close() error {
	if c.done {
		return nil
	}
	return newProtocolError(c.channel, c.stage,
		fmt.Sprintf("expected %d items, upstream closed after %d", c.expected, len(c.items)),
		ErrBarrierShort)
}

// Count возвращает количество собранных элементов.
func (c *Collector) Count() int { return len(c.items) }

// Flatten разворачивает агрегат обратно в последовательность элементов,
// сохраняя их порядок.
func Flatten(t domain.Token) ([]domain.Token, error) {
	if !t.IsAggregate() {
		return nil, newProtocolError("", "", describe(t), ErrNotAggregate)
	}
	out := make([]domain.Token, len(t.Elements))
	copy(out, t.Elements)
	return out, nil
}

// Pairer сопоставляет per_item входы стадии по ключу образца.
//
// Каждый вход поставляет не более одного token на ключ. Набор считается
// полным, когда token с данным ключом пришёл по всем входам. Ключ, который
// уже не может быть дополнен (вход закрыт без него), и повтор ключа
// на одном входе — фатальные нарушения протокола.
type Pairer struct {
	stage   string
	inputs  []string
	pending map[string]map[string]domain.Token
	order   []string
	seen    map[string]map[string]bool
	closed  map[string]bool
}

// NewPairer создаёт сопоставитель для перечисленных входов.
func NewPairer(stage string, inputs ...string) *Pairer {
	p := &Pairer{
		stage:   stage,
		inputs:  append([]string(nil), inputs...),
		pending: make(map[string]map[string]domain.Token),
		seen:    make(map[string]map[string]bool),
		closed:  make(map[string]bool),
	}
	for _, in := range inputs {
		p.seen[in] = make(map[string]bool)
	}
	return p
}

// Add принимает token на вход input.
// Возвращает полный набор (имя входа → token), если он собрался.
func (p *Pairer) Add(input string, t domain.Token) (map[string]domain.Token, bool, error) {
	seen, ok := p.seen[input]
	if !ok {
		return nil, false, newProtocolError("", p.stage, fmt.Sprintf("unknown input %q", input), ErrPairMismatch)
	}
	key := t.SampleID
	if seen[key] {
		return nil, false, newProtocolError("", p.stage,
			fmt.Sprintf("input %s delivered sample %q twice", input, key), ErrPairMismatch)
	}
	seen[key] = true

	for _, other := range p.inputs {
		if other != input && p.closed[other] && !p.seen[other][key] {
			return nil, false, newProtocolError("", p.stage,
				fmt.Sprintf("sample %q on input %s has no partner on closed input %s", key, input, other),
				ErrPairMismatch)
		}
	}

	set, ok := p.pending[key]
	if !ok {
		set = make(map[string]domain.Token, len(p.inputs))
		p.pending[key] = set
		p.order = append(p.order, key)
	}
	set[input] = t
	if len(set) < len(p.inputs) {
		return nil, false, nil
	}
	delete(p.pending, key)
	p.dropOrder(key)
	return set, true, nil
}

// Close сообщает, что вход input больше не поставит token'ов.
func (p *Pairer) Close(input string) error {
	p.closed[input] = true
	var orphans []string
	for _, key := range p.order {
		if _, has := p.pending[key][input]; !has {
			orphans = append(orphans, key)
		}
	}
	if len(orphans) > 0 {
		return newProtocolError("", p.stage,
			fmt.Sprintf("input %s closed without samples %s", input, strings.Join(orphans, ", ")),
			ErrPairMismatch)
	}
	return nil
}

func (p *Pairer) dropOrder(key string) {
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}
