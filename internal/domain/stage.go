package domain

// Cardinality — как стадия потребляет входной канал.
type Cardinality string

const (
	// CardinalityBroadcast — единственное значение, которое получает каждый экземпляр.
	CardinalityBroadcast Cardinality = "broadcast"

	// CardinalityPerItem — один экземпляр стадии на каждый элемент канала.
	CardinalityPerItem Cardinality = "per_item"

	// CardinalityCollected — barrier: все элементы канала одним агрегатом.
	CardinalityCollected Cardinality = "collected"
)

// ChannelKind — дисциплина канала.
type ChannelKind string

const (
	// ChannelQueue — поэлементный канал с одним потребителем.
	ChannelQueue ChannelKind = "queue"

	// ChannelFork — поэлементный канал с явной копией для нескольких потребителей.
	ChannelFork ChannelKind = "fork"

	// ChannelBroadcast — канал одного значения (first), не расходуется при чтении.
	ChannelBroadcast ChannelKind = "broadcast"
)

// StageKind — способ выполнения стадии.
type StageKind string

const (
	// StageKindTool — внешний инструмент, запускаемый как subprocess.
	StageKindTool StageKind = "tool"

	// StageKindBuiltin — стадия, выполняемая внутри процесса (отчёт).
	StageKindBuiltin StageKind = "builtin"
)

// ArgSource — откуда берётся значение аргумента командной строки.
type ArgSource string

const (
	ArgInput   ArgSource = "input"   // пути входного token
	ArgOutput  ArgSource = "output"  // путь объявленного выхода
	ArgParam   ArgSource = "param"   // параметр запуска (RunParams)
	ArgThreads ArgSource = "threads" // число потоков стадии
	ArgLiteral ArgSource = "literal" // фиксированное значение
)

// Arg — один типизированный аргумент командной строки.
//
// Flag может быть пустым (позиционный аргумент).
// Ref — имя входа, выхода или ключ параметра в зависимости от Source.
type Arg struct {
	Flag   string    `json:"flag,omitempty" yaml:"flag,omitempty"`
	Source ArgSource `json:"source" yaml:"source"`
	Ref    string    `json:"ref,omitempty" yaml:"ref,omitempty"`
	Value  string    `json:"value,omitempty" yaml:"value,omitempty"`
}

// CommandSpec — типизированное описание вызова инструмента.
type CommandSpec struct {
	Args []Arg `json:"args" yaml:"args"`
}

// InputDef — объявление входа стадии.
type InputDef struct {
	// Name — локальное имя входа (используется в CommandSpec).
	Name string `json:"name" yaml:"name"`

	// Channel — канал, из которого читается вход.
	Channel string `json:"channel" yaml:"channel"`

	// Cardinality — дисциплина потребления.
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality"`

	// Flatten — развернуть агрегатный token в поток элементов.
	// Допустимо только для per_item входа.
	Flatten bool `json:"flatten,omitempty" yaml:"flatten,omitempty"`
}

// OutputDef — объявление выхода стадии.
type OutputDef struct {
	// Name — локальное имя выхода.
	Name string `json:"name" yaml:"name"`

	// Channel — канал, в который публикуется token.
	Channel string `json:"channel" yaml:"channel"`

	// Kind — дисциплина канала.
	Kind ChannelKind `json:"kind" yaml:"kind"`

	// Suffix — суффикс имени файла, например ".idXML".
	Suffix string `json:"suffix" yaml:"suffix"`

	// PerElement — по одному файлу на каждый элемент collected входа.
	// Выход становится агрегатом с ключами образцов элементов.
	PerElement bool `json:"per_element,omitempty" yaml:"per_element,omitempty"`
}

// Parallelism — подсказки по параллелизму стадии.
type Parallelism struct {
	// Threads — значение для -threads (0 = RunParams.MaxCPUs).
	Threads int `json:"threads,omitempty" yaml:"threads,omitempty"`

	// MaxForks — сколько экземпляров стадии может выполняться одновременно
	// (0 = без ограничения сверх глобального лимита).
	MaxForks int `json:"max_forks,omitempty" yaml:"max_forks,omitempty"`
}

// StageDef — декларация стадии в каталоге.
type StageDef struct {
	Name        string      `json:"name" yaml:"name"`
	Tool        string      `json:"tool" yaml:"tool"`
	Kind        StageKind   `json:"kind" yaml:"kind"`
	Inputs      []InputDef  `json:"inputs" yaml:"inputs"`
	Outputs     []OutputDef `json:"outputs" yaml:"outputs"`
	Command     CommandSpec `json:"command" yaml:"command"`
	Parallelism Parallelism `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`

	// MergedSample — SampleID выходов стадии, объединяющей все образцы.
	MergedSample string `json:"merged_sample,omitempty" yaml:"merged_sample,omitempty"`
}

// Input возвращает объявление входа по имени.
func (s *StageDef) Input(name string) (*InputDef, bool) {
	for i := range s.Inputs {
		if s.Inputs[i].Name == name {
			return &s.Inputs[i], true
		}
	}
	return nil, false
}

// Output возвращает объявление выхода по имени.
func (s *StageDef) Output(name string) (*OutputDef, bool) {
	for i := range s.Outputs {
		if s.Outputs[i].Name == name {
			return &s.Outputs[i], true
		}
	}
	return nil, false
}

// PerItemInputs возвращает входы с кардинальностью per_item.
func (s *StageDef) PerItemInputs() []InputDef {
	inputs := make([]InputDef, 0, len(s.Inputs))
	for _, in := range s.Inputs {
		if in.Cardinality == CardinalityPerItem {
			inputs = append(inputs, in)
		}
	}
	return inputs
}

// SourceDef — точка входа сырых данных в граф.
type SourceDef struct {
	// Name — имя источника ("spectra", "database").
	Name string `json:"name" yaml:"name"`

	// Channel — канал, в который эмитируются token'ы источника.
	Channel string `json:"channel" yaml:"channel"`

	// Kind — дисциплина канала источника.
	Kind ChannelKind `json:"kind" yaml:"kind"`

	// PerSample — по одному token на образец (ширина = число образцов).
	// false — ровно один token.
	PerSample bool `json:"per_sample" yaml:"per_sample"`
}

// Catalog — декларативный каталог пайплайна.
type Catalog struct {
	Name    string      `json:"name" yaml:"name"`
	Sources []SourceDef `json:"sources" yaml:"sources"`
	Stages  []StageDef  `json:"stages" yaml:"stages"`
}

// Stage возвращает стадию по имени.
func (c *Catalog) Stage(name string) (*StageDef, bool) {
	for i := range c.Stages {
		if c.Stages[i].Name == name {
			return &c.Stages[i], true
		}
	}
	return nil, false
}
