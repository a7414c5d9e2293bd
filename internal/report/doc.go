// Package report реализует встроенную стадию отчёта.
//
// mzTab разбирается по префиксу строки (MTD, PRH/PRT, PEH/PEP, PSH/PSM).
// По нему считаются число идентификаций, PSM по ms_run, распределение
// зарядов и статистика log2 abundance белков по assay (gonum/stat).
// Результат пишется как report.json и HTML страница с графиками (go-echarts).
package report
