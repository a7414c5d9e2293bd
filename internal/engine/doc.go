// Package engine содержит сборку и проверку графа пайплайна.
//
// Включает:
//   - parser.go  — структурная валидация каталога стадий
//   - dag.go     — связывание каналов, топологическая сортировка и проверка кардинальностей
//   - command.go — рендеринг типизированных команд и план выходных файлов
//   - mermaid.go — визуализация топологии
//
// Все ошибки сборки возвращаются до запуска первого экземпляра
// как *ValidationError с одной из sentinel-ошибок пакета.
package engine
