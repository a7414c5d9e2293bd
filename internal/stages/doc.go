// Package stages описывает каталог пайплайна количественной протеомики.
//
// Каталог состоит из двух источников (spectra, database) и восемнадцати
// стадий. Семнадцать из них вызывают внешние инструменты OpenMS,
// последняя (report) выполняется внутри процесса.
//
// Поток данных:
//
//	database → decoy_database ─(searchdb, broadcast)─┐
//	spectra ─┬→ search_engine → index_peptides → extract_pep ─┬→ filter_psms → align_maps(collect)
//	         │                                                └→ rt_transform_idxml ← flatten(trafo)
//	         └→ rt_transform_mzml ← flatten(trafo)
//	rt_transform_idxml → merge_ids(collect) → extract_features → percolator → filter_ids
//	rt_transform_mzml + filter_ids → quantify_features → link_features(collect)
//	→ resolve_conflicts → export_mztab → report
//	                    → export_consensus
//
// Каталог декларативен: проверку топологии и кардинальностей
// выполняет engine.BuildDAG.
package stages
