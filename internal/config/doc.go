// Package config собирает конфигурацию run до сборки графа.
//
// Включает:
//   - params.go — параметры запуска: значения по умолчанию, YAML файл,
//     переопределения --param key=value
//   - inputs.go — поиск спектров по шаблону и проверка FASTA базы
//
// Все ошибки — sentinel-ошибки пакета, обёрнутые с контекстом.
package config
