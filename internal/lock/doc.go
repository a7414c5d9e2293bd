// Package lock реализует эксклюзивную блокировку выходного каталога.
//
// Два run с одним outdir перезаписали бы опубликованные артефакты
// друг друга. Locker захватывает ключ Redis через SET NX PX со
// случайным токеном держателя; снятие и продление выполняются Lua
// скриптом только при совпадении токена.
//
// Блокировка опциональна: включается переменной REDIS_URL.
package lock
