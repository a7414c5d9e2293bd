package domain

// Token — неизменяемая ссылка на один артефакт вместе с идентичностью образца.
//
// Token — базовая единица, которая течёт по каналам графа:
//   - Path указывает на опубликованный файл
//   - SampleID выводится один раз из имени сырого входного файла
//     и дальше передаётся без изменений
//   - Stage — стадия, которая произвела артефакт (provenance)
//
// Агрегатный token (результат collect) не имеет собственного Path,
// вместо этого содержит упорядоченный список Elements.
type Token struct {
	// Path — путь к артефакту.
	Path string `json:"path,omitempty"`

	// SampleID — стабильный ключ исходного образца.
	SampleID string `json:"sample_id"`

	// Stage — имя стадии или источника, создавшего token.
	Stage string `json:"stage"`

	// Elements — элементы агрегата в порядке поступления.
	// nil для обычного token.
	Elements []Token `json:"elements,omitempty"`
}

// NewAggregate создаёт агрегатный token из элементов.
// Порядок элементов сохраняется, срез копируется.
func NewAggregate(stage, sampleID string, elements []Token) Token {
	elems := make([]Token, len(elements))
	copy(elems, elements)
	return Token{
		SampleID: sampleID,
		Stage:    stage,
		Elements: elems,
	}
}

// IsAggregate возвращает true, если token является агрегатом.
func (t Token) IsAggregate() bool {
	return t.Elements != nil
}

// Len возвращает количество артефактов в token.
func (t Token) Len() int {
	if t.IsAggregate() {
		return len(t.Elements)
	}
	return 1
}

// Paths возвращает пути всех артефактов token.
// Для агрегата — пути элементов по порядку, иначе — единственный Path.
func (t Token) Paths() []string {
	if !t.IsAggregate() {
		return []string{t.Path}
	}
	paths := make([]string, 0, len(t.Elements))
	for _, e := range t.Elements {
		paths = append(paths, e.Paths()...)
	}
	return paths
}

// SampleIDs возвращает ключи образцов элементов агрегата.
func (t Token) SampleIDs() []string {
	if !t.IsAggregate() {
		return []string{t.SampleID}
	}
	ids := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		ids[i] = e.SampleID
	}
	return ids
}
