package orchestrator

import (
	"fmt"

	"github.com/shaiso/Spectra/internal/dataflow"
	"github.com/shaiso/Spectra/internal/domain"
)

// binder собирает наборы входов для экземпляров одной стадии.
//
// per_item входы сопоставляются по ключу образца (dataflow.Pairer),
// collected вход проходит через barrier (dataflow.Collector),
// broadcast значения подставляются в каждый набор.
// binder вызывается только из горутины координатора.
type binder struct {
	stage    *domain.StageDef
	expected int

	pairer     *dataflow.Pairer
	collector  *dataflow.Collector
	broadcasts map[string]*domain.Token

	// flattened — broadcast канал уже прочитан flatten входом.
	flattened map[string]bool
	closed    map[string]bool

	// sets — полные наборы per_item/collected входов, ожидающие broadcast значений.
	sets    []map[string]domain.Token
	emitted int
}

// newBinder создаёт binder стадии, которая должна выполниться expected раз.
// width — ширина collected входа (для barrier).
func newBinder(stage *domain.StageDef, expected, collectedWidth int) *binder {
	b := &binder{
		stage:      stage,
		expected:   expected,
		broadcasts: make(map[string]*domain.Token),
		flattened:  make(map[string]bool),
		closed:     make(map[string]bool),
	}

	perItem := make([]string, 0)
	for _, in := range stage.Inputs {
		switch in.Cardinality {
		case domain.CardinalityPerItem:
			perItem = append(perItem, in.Name)
		case domain.CardinalityCollected:
			b.collector = dataflow.NewCollector(in.Channel, stage.Name, mergedSample(stage), collectedWidth)
		case domain.CardinalityBroadcast:
			b.broadcasts[in.Name] = nil
		}
	}

	if len(perItem) > 0 {
		b.pairer = dataflow.NewPairer(stage.Name, perItem...)
	}

	// Стадия только с broadcast входами выполняется один раз
	if b.pairer == nil && b.collector == nil {
		b.sets = append(b.sets, make(map[string]domain.Token))
	}

	return b
}

// pull читает из канала всё новое для входа in.
func (b *binder) pull(ch *dataflow.Channel, in domain.InputDef) error {
	switch in.Cardinality {
	case domain.CardinalityBroadcast:
		v, ok, err := ch.First()
		if err != nil {
			return withStage(err, b.stage.Name)
		}
		if ok && b.broadcasts[in.Name] == nil {
			b.broadcasts[in.Name] = &v
		}
		if ch.Closed() {
			b.closed[in.Name] = true
		}
		return nil

	case domain.CardinalityCollected:
		tokens, err := ch.Drain(b.stage.Name)
		if err != nil {
			return err
		}
		for _, t := range tokens {
			agg, complete, err := b.collector.Add(t)
			if err != nil {
				return err
			}
			if complete {
				b.sets = append(b.sets, map[string]domain.Token{in.Name: agg})
			}
		}
		if ch.Exhausted(b.stage.Name) && !b.closed[in.Name] {
			b.closed[in.Name] = true
			return b.collector.Close()
		}
		return nil

	default:
		tokens, err := b.read(ch, in)
		if err != nil {
			return err
		}
		for _, t := range tokens {
			if err := b.addItem(in, t); err != nil {
				return err
			}
		}
		if ch.Exhausted(b.stage.Name) && !b.closed[in.Name] {
			b.closed[in.Name] = true
			return b.pairer.Close(in.Name)
		}
		return nil
	}
}

// read возвращает новые token'ы per_item входа.
// Broadcast канал отдаёт своё значение один раз.
func (b *binder) read(ch *dataflow.Channel, in domain.InputDef) ([]domain.Token, error) {
	if ch.Kind() != domain.ChannelBroadcast {
		return ch.Drain(b.stage.Name)
	}
	if b.flattened[in.Name] {
		return nil, nil
	}
	v, ok, err := ch.First()
	if err != nil {
		return nil, withStage(err, b.stage.Name)
	}
	if !ok {
		return nil, nil
	}
	b.flattened[in.Name] = true
	return []domain.Token{v}, nil
}

// addItem передаёт token (или элементы агрегата при flatten) в pairer.
func (b *binder) addItem(in domain.InputDef, t domain.Token) error {
	items := []domain.Token{t}
	if in.Flatten {
		flat, err := dataflow.Flatten(t)
		if err != nil {
			return withStage(err, b.stage.Name)
		}
		items = flat
	}

	for _, item := range items {
		set, complete, err := b.pairer.Add(in.Name, item)
		if err != nil {
			return err
		}
		if complete {
			b.sets = append(b.sets, set)
		}
	}
	return nil
}

// ready возвращает наборы, для которых доступны все broadcast значения.
func (b *binder) ready() ([]map[string]domain.Token, error) {
	for _, v := range b.broadcasts {
		if v == nil {
			return nil, nil
		}
	}
	if len(b.sets) == 0 {
		return nil, nil
	}

	out := make([]map[string]domain.Token, 0, len(b.sets))
	for _, set := range b.sets {
		for name, v := range b.broadcasts {
			set[name] = *v
		}
		out = append(out, set)
	}
	b.sets = nil

	b.emitted += len(out)
	if b.emitted > b.expected {
		return nil, protocolError(b.stage.Name,
			fmt.Sprintf("%d input sets bound, graph width allows %d", b.emitted, b.expected), ErrInstanceCount)
	}
	return out, nil
}

// exhausted возвращает true, если все входы закрыты и наборов больше не будет.
func (b *binder) exhausted() bool {
	for _, in := range b.stage.Inputs {
		if !b.closed[in.Name] {
			return false
		}
	}
	return len(b.sets) == 0
}

// check проверяет, что закрытые входы дали ожидаемое количество наборов.
func (b *binder) check() error {
	if b.exhausted() && b.emitted != b.expected {
		return protocolError(b.stage.Name,
			fmt.Sprintf("inputs closed after %d input sets, expected %d", b.emitted, b.expected), ErrInstanceCount)
	}
	return nil
}

// sampleFor возвращает ключ образца экземпляра для набора входов.
// Ключ берётся из первого per_item входа, иначе — MergedSample.
func (b *binder) sampleFor(set map[string]domain.Token) string {
	for _, in := range b.stage.Inputs {
		if in.Cardinality == domain.CardinalityPerItem {
			return set[in.Name].SampleID
		}
	}
	return mergedSample(b.stage)
}

func mergedSample(stage *domain.StageDef) string {
	if stage.MergedSample != "" {
		return stage.MergedSample
	}
	return stage.Name
}

// withStage дополняет нарушение протокола именем стадии.
func withStage(err error, stage string) error {
	if pe, ok := err.(*dataflow.ProtocolError); ok && pe.Stage == "" {
		cp := *pe
		cp.Stage = stage
		return &cp
	}
	return err
}
