package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/Spectra/internal/domain"
)

// Width — символическая ширина потока: сколько token'ов пройдёт по каналу.
//
// Конкретное число становится известно только при запуске (число образцов),
// но все проверки кардинальности выполняются над символами.
type Width int

const (
	// WidthUnknown — ширина ещё не вычислена.
	WidthUnknown Width = iota

	// WidthOne — ровно один token.
	WidthOne

	// WidthSamples — по одному token на образец.
	WidthSamples
)

// String возвращает имя ширины.
func (w Width) String() string {
	switch w {
	case WidthOne:
		return "1"
	case WidthSamples:
		return "N"
	default:
		return "?"
	}
}

// Resolve возвращает конкретное количество token'ов для samples образцов.
func (w Width) Resolve(samples int) int {
	if w == WidthSamples {
		return samples
	}
	return 1
}

// ChannelInfo — статическое описание канала после сборки.
type ChannelInfo struct {
	// Name — имя канала.
	Name string

	// Kind — дисциплина канала.
	Kind domain.ChannelKind

	// Width — количество token'ов в канале.
	Width Width

	// Aggregate — token'ы канала являются агрегатами.
	Aggregate bool

	// ElementWidth — количество элементов в каждом агрегате.
	ElementWidth Width

	// Producer — стадия или источник, производящий канал.
	Producer string

	// FromSource — канал производится источником, а не стадией.
	FromSource bool

	// Consumers — стадии-потребители в порядке каталога.
	Consumers []ConsumerRef
}

// IsFinal возвращает true, если у канала нет потребителей (конечный артефакт).
func (c *ChannelInfo) IsFinal() bool {
	return len(c.Consumers) == 0
}

// ConsumerRef — ссылка на вход стадии, читающий канал.
type ConsumerRef struct {
	Stage string
	Input string
}

// Node — узел в DAG.
type Node struct {
	// Stage — определение стадии из каталога.
	Stage *domain.StageDef

	// ID — идентификатор узла (имя стадии).
	ID string

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node

	// Width — количество экземпляров стадии.
	Width Width
}

// DAG — направленный ациклический граф стадий пайплайна.
//
// Граф неизменяем после сборки: BuildDAG проверяет связывание каналов,
// отсутствие циклов и совместимость кардинальностей.
type DAG struct {
	// Catalog — исходный каталог.
	Catalog *domain.Catalog

	// Nodes — все узлы графа (имя стадии → Node).
	Nodes map[string]*Node

	// Channels — все каналы графа (имя канала → ChannelInfo).
	Channels map[string]*ChannelInfo

	// RootNodes — узлы, читающие только источники (точки входа).
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// BuildDAG строит DAG из каталога.
//
// Этапы:
// - Структурная валидация каталога (Validate)
// - Регистрация каналов источников и выходов стадий
// - Связывание входов с производителями каналов
// - Топологическая сортировка (алгоритм Кана)
// - Вычисление ширин и проверка кардинальностей в топологическом порядке
func BuildDAG(cat *domain.Catalog) (*DAG, error) {
	if err := Validate(cat); err != nil {
		return nil, err
	}

	dag := &DAG{
		Catalog:   cat,
		Nodes:     make(map[string]*Node),
		Channels:  make(map[string]*ChannelInfo),
		RootNodes: make([]*Node, 0),
	}

	// Первый проход: каналы источников
	for _, src := range cat.Sources {
		width := WidthOne
		if src.PerSample {
			width = WidthSamples
		}
		if err := dag.addChannel(src.Channel, src.Kind, src.Name, true, width); err != nil {
			return nil, err
		}
	}

	// Второй проход: узлы и их выходные каналы
	for i := range cat.Stages {
		stage := &cat.Stages[i]
		dag.Nodes[stage.Name] = &Node{
			Stage:      stage,
			ID:         stage.Name,
			DependsOn:  make([]*Node, 0),
			Dependents: make([]*Node, 0),
		}
		for _, out := range stage.Outputs {
			if err := dag.addChannel(out.Channel, out.Kind, stage.Name, false, WidthUnknown); err != nil {
				return nil, err
			}
		}
	}

	// Третий проход: связываем входы с производителями
	for i := range cat.Stages {
		if err := dag.linkInputs(&cat.Stages[i]); err != nil {
			return nil, err
		}
	}

	// Проверяем потребителей queue каналов
	if err := dag.checkConsumers(); err != nil {
		return nil, err
	}

	dag.findRootNodes()

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	// Ширины и кардинальности
	for _, node := range dag.Order {
		if err := dag.resolveNode(node); err != nil {
			return nil, err
		}
	}

	return dag, nil
}

// addChannel регистрирует канал и его производителя.
func (d *DAG) addChannel(name string, kind domain.ChannelKind, producer string, fromSource bool, width Width) error {
	if existing, ok := d.Channels[name]; ok {
		return NewValidationError(producer, "outputs",
			fmt.Sprintf("channel %s already produced by %s", name, existing.Producer), ErrDuplicateProducer)
	}
	d.Channels[name] = &ChannelInfo{
		Name:       name,
		Kind:       kind,
		Width:      width,
		Producer:   producer,
		FromSource: fromSource,
		Consumers:  make([]ConsumerRef, 0),
	}
	return nil
}

// linkInputs связывает входы стадии с производителями каналов.
func (d *DAG) linkInputs(stage *domain.StageDef) error {
	node := d.Nodes[stage.Name]

	for _, in := range stage.Inputs {
		ch, ok := d.Channels[in.Channel]
		if !ok {
			return NewValidationError(stage.Name, "inputs",
				fmt.Sprintf("input %s reads channel %s which has no producer", in.Name, in.Channel), ErrUnknownChannel)
		}
		if ch.Producer == stage.Name {
			return NewValidationError(stage.Name, "inputs",
				fmt.Sprintf("input %s reads the stage's own output %s", in.Name, in.Channel), ErrSelfDependency)
		}

		ch.Consumers = append(ch.Consumers, ConsumerRef{Stage: stage.Name, Input: in.Name})

		if ch.FromSource {
			continue
		}
		d.addEdge(d.Nodes[ch.Producer], node)
	}

	return nil
}

// checkConsumers проверяет, что у queue каналов не более одного потребителя.
func (d *DAG) checkConsumers() error {
	for _, name := range d.channelNames() {
		ch := d.Channels[name]
		if ch.Kind == domain.ChannelQueue && len(ch.Consumers) > 1 {
			return NewValidationError(ch.Consumers[1].Stage, "inputs",
				fmt.Sprintf("queue channel %s is already consumed by %s; declare it as fork or broadcast",
					name, ch.Consumers[0].Stage), ErrMultipleConsumers)
		}
	}
	return nil
}

// addEdge добавляет ребро между узлами.
// Дополнительно проверяет на дубликаты, чтобы избежать двойного учета InDegree.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return // уже связаны
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// findRootNodes находит узлы без входящих рёбер в порядке каталога.
func (d *DAG) findRootNodes() {
	d.RootNodes = make([]*Node, 0)
	for i := range d.Catalog.Stages {
		node := d.Nodes[d.Catalog.Stages[i].Name]
		if node.InDegree == 0 {
			d.RootNodes = append(d.RootNodes, node)
		}
	}
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	// Копируем inDegree, чтобы не модифицировать оригинал
	inDegree := make(map[string]int)
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	// Очередь узлов с inDegree = 0
	queue := make([]*Node, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Node, 0, len(d.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(d.Nodes) {
		stuck := make([]string, 0)
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, NewValidationError("", "inputs",
			fmt.Sprintf("cyclic dependency between stages %v", stuck), ErrCyclicDependency)
	}

	return order, nil
}

// resolveNode вычисляет ширину узла и его выходов, проверяя кардинальности входов.
// Вызывается в топологическом порядке, поэтому ширины входных каналов уже известны.
func (d *DAG) resolveNode(node *Node) error {
	stage := node.Stage
	perItemWidth := WidthUnknown
	var perItemFrom string
	var collected *ChannelInfo

	for _, in := range stage.Inputs {
		ch := d.Channels[in.Channel]

		switch in.Cardinality {
		case domain.CardinalityBroadcast:
			if ch.Kind != domain.ChannelBroadcast {
				return NewValidationError(stage.Name, "inputs",
					fmt.Sprintf("broadcast input %s reads %s channel %s", in.Name, ch.Kind, ch.Name), ErrCardinalityMismatch)
			}

		case domain.CardinalityCollected:
			if ch.Kind == domain.ChannelBroadcast || ch.Aggregate {
				return NewValidationError(stage.Name, "inputs",
					fmt.Sprintf("collected input %s needs a per-item channel, %s is %s", in.Name, ch.Name, describeChannel(ch)),
					ErrCardinalityMismatch)
			}
			if ch.Width != WidthSamples {
				return NewValidationError(stage.Name, "inputs",
					fmt.Sprintf("collected input %s reads channel %s of width %s, want N", in.Name, ch.Name, ch.Width),
					ErrCardinalityMismatch)
			}
			collected = ch

		case domain.CardinalityPerItem:
			width := ch.Width
			if in.Flatten {
				if !ch.Aggregate {
					return NewValidationError(stage.Name, "inputs",
						fmt.Sprintf("input %s flattens channel %s which carries no aggregates", in.Name, ch.Name),
						ErrFlattenNonAggregate)
				}
				width = ch.ElementWidth
			} else if ch.Aggregate {
				return NewValidationError(stage.Name, "inputs",
					fmt.Sprintf("per-item input %s reads aggregate channel %s without flatten", in.Name, ch.Name),
					ErrCardinalityMismatch)
			}

			if perItemWidth == WidthUnknown {
				perItemWidth = width
				perItemFrom = in.Name
			} else if perItemWidth != width {
				return NewValidationError(stage.Name, "inputs",
					fmt.Sprintf("input %s has width %s but input %s has width %s", in.Name, width, perItemFrom, perItemWidth),
					ErrWidthMismatch)
			}
		}
	}

	node.Width = WidthOne
	if perItemWidth != WidthUnknown {
		node.Width = perItemWidth
	}

	for _, out := range stage.Outputs {
		ch := d.Channels[out.Channel]
		ch.Width = node.Width
		if out.PerElement {
			ch.Aggregate = true
			ch.ElementWidth = collected.Width
		}
		if ch.Kind == domain.ChannelBroadcast && ch.Width != WidthOne {
			return NewValidationError(stage.Name, "outputs",
				fmt.Sprintf("output %s is broadcast but the stage runs once per sample", out.Name),
				ErrCardinalityMismatch)
		}
	}

	return nil
}

// GetNode возвращает узел по ID.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

// Channel возвращает описание канала.
func (d *DAG) Channel(name string) (*ChannelInfo, bool) {
	ch, ok := d.Channels[name]
	return ch, ok
}

// StageOrder возвращает определения стадий в топологическом порядке.
func (d *DAG) StageOrder() []domain.StageDef {
	stages := make([]domain.StageDef, len(d.Order))
	for i, node := range d.Order {
		stages[i] = *node.Stage
	}
	return stages
}

// ExpectedInstances возвращает количество экземпляров стадии для samples образцов.
func (d *DAG) ExpectedInstances(stage string, samples int) int {
	node, ok := d.Nodes[stage]
	if !ok {
		return 0
	}
	return node.Width.Resolve(samples)
}

// FinalChannels возвращает каналы без потребителей, отсортированные по имени.
func (d *DAG) FinalChannels() []*ChannelInfo {
	out := make([]*ChannelInfo, 0)
	for _, name := range d.channelNames() {
		if ch := d.Channels[name]; ch.IsFinal() {
			out = append(out, ch)
		}
	}
	return out
}

// channelNames возвращает имена каналов в детерминированном порядке.
func (d *DAG) channelNames() []string {
	names := make([]string, 0, len(d.Channels))
	for name := range d.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func describeChannel(ch *ChannelInfo) string {
	if ch.Aggregate {
		return "an aggregate channel"
	}
	return string(ch.Kind)
}
