package stages

import "github.com/shaiso/Spectra/internal/domain"

// Имена источников.
const (
	SourceSpectra  = "spectra"
	SourceDatabase = "database"
)

// Имя, которым помечаются выходы стадий, объединяющих все образцы.
const MergedSample = "merged"

// Имя встроенной стадии отчёта.
const ReportStage = "report"

// PipelineName — имя каталога.
const PipelineName = "proteomics-lfq"

// Catalog возвращает каталог из восемнадцати стадий.
// Каждый вызов возвращает независимую копию.
func Catalog() *domain.Catalog {
	return &domain.Catalog{
		Name: PipelineName,
		Sources: []domain.SourceDef{
			{Name: SourceSpectra, Channel: "spectra", Kind: domain.ChannelFork, PerSample: true},
			{Name: SourceDatabase, Channel: "database", Kind: domain.ChannelQueue},
		},
		Stages: []domain.StageDef{
			decoyDatabase(),
			searchEngine(),
			indexPeptides(),
			extractPEP(),
			filterPSMs(),
			alignMaps(),
			rtTransformMzML(),
			rtTransformIdXML(),
			mergeIDs(),
			extractFeatures(),
			percolator(),
			filterIDs(),
			quantifyFeatures(),
			linkFeatures(),
			resolveConflicts(),
			exportMzTab(),
			exportConsensus(),
			report(),
		},
	}
}

func in(flag, ref string) domain.Arg {
	return domain.Arg{Flag: flag, Source: domain.ArgInput, Ref: ref}
}

func out(flag, ref string) domain.Arg {
	return domain.Arg{Flag: flag, Source: domain.ArgOutput, Ref: ref}
}

func param(flag, key string) domain.Arg {
	return domain.Arg{Flag: flag, Source: domain.ArgParam, Ref: key}
}

func literal(flag, value string) domain.Arg {
	return domain.Arg{Flag: flag, Source: domain.ArgLiteral, Value: value}
}

func threads() domain.Arg {
	return domain.Arg{Flag: "-threads", Source: domain.ArgThreads}
}

func perItem(name, channel string) domain.InputDef {
	return domain.InputDef{Name: name, Channel: channel, Cardinality: domain.CardinalityPerItem}
}

func broadcast(name, channel string) domain.InputDef {
	return domain.InputDef{Name: name, Channel: channel, Cardinality: domain.CardinalityBroadcast}
}

func collected(name, channel string) domain.InputDef {
	return domain.InputDef{Name: name, Channel: channel, Cardinality: domain.CardinalityCollected}
}

func flatten(name, channel string) domain.InputDef {
	return domain.InputDef{Name: name, Channel: channel, Cardinality: domain.CardinalityPerItem, Flatten: true}
}

func output(name, channel string, kind domain.ChannelKind, suffix string) domain.OutputDef {
	return domain.OutputDef{Name: name, Channel: channel, Kind: kind, Suffix: suffix}
}

func decoyDatabase() domain.StageDef {
	return domain.StageDef{
		Name:    "decoy_database",
		Tool:    "DecoyDatabase",
		Kind:    domain.StageKindTool,
		Inputs:  []domain.InputDef{perItem("fasta", "database")},
		Outputs: []domain.OutputDef{output("db", "searchdb", domain.ChannelBroadcast, "_decoy.fasta")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "fasta"),
			out("-out", "db"),
			param("-decoy_string", "decoy_affix"),
			param("-decoy_string_position", "affix_type"),
			literal("-method", "reverse"),
			literal("-shuffle_max_attempts", "30"),
			threads(),
		}},
	}
}

func searchEngine() domain.StageDef {
	return domain.StageDef{
		Name: "search_engine",
		Tool: "CometAdapter",
		Kind: domain.StageKindTool,
		Inputs: []domain.InputDef{
			perItem("mzml", "spectra"),
			broadcast("db", "searchdb"),
		},
		Outputs: []domain.OutputDef{output("ids", "id_raw", domain.ChannelQueue, "_comet.idXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "mzml"),
			in("-database", "db"),
			out("-out", "ids"),
			threads(),
			param("-precursor_mass_tolerance", "precursor_mass_tolerance"),
			param("-precursor_error_units", "precursor_mass_tolerance_unit"),
			param("-fragment_mass_tolerance", "fragment_mass_tolerance"),
			param("-fragment_error_units", "fragment_mass_tolerance_unit"),
			param("-enzyme", "enzyme"),
			param("-num_enzyme_termini", "num_enzyme_termini"),
			param("-missed_cleavages", "allowed_missed_cleavages"),
			param("-fixed_modifications", "fixed_mods"),
			param("-variable_modifications", "variable_mods"),
			param("-precursor_charge", "precursor_charge"),
			param("-num_hits", "num_hits"),
		}},
	}
}

func indexPeptides() domain.StageDef {
	return domain.StageDef{
		Name: "index_peptides",
		Tool: "PeptideIndexer",
		Kind: domain.StageKindTool,
		Inputs: []domain.InputDef{
			perItem("ids", "id_raw"),
			broadcast("db", "searchdb"),
		},
		Outputs: []domain.OutputDef{output("ids", "id_indexed", domain.ChannelQueue, "_idx.idXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "ids"),
			in("-fasta", "db"),
			out("-out", "ids"),
			threads(),
			param("-decoy_string", "decoy_affix"),
			param("-decoy_string_position", "affix_type"),
			param("-enzyme:name", "enzyme"),
			param("-enzyme:specificity", "num_enzyme_termini"),
			literal("-missing_decoy_action", "warn"),
		}},
	}
}

func extractPEP() domain.StageDef {
	return domain.StageDef{
		Name:    "extract_pep",
		Tool:    "IDPosteriorErrorProbability",
		Kind:    domain.StageKindTool,
		Inputs:  []domain.InputDef{perItem("ids", "id_indexed")},
		Outputs: []domain.OutputDef{output("ids", "id_pep", domain.ChannelFork, "_pep.idXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "ids"),
			out("-out", "ids"),
			threads(),
			literal("-fit_algorithm:outlier_handling", "ignore_iqr_outliers"),
		}},
	}
}

func filterPSMs() domain.StageDef {
	return domain.StageDef{
		Name:    "filter_psms",
		Tool:    "IDFilter",
		Kind:    domain.StageKindTool,
		Inputs:  []domain.InputDef{perItem("ids", "id_pep")},
		Outputs: []domain.OutputDef{output("ids", "id_filtered", domain.ChannelQueue, "_filter.idXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "ids"),
			out("-out", "ids"),
			threads(),
			param("-score:pep", "psm_pep_fdr_cutoff"),
		}},
	}
}

func alignMaps() domain.StageDef {
	trafo := output("trafo", "trafo", domain.ChannelBroadcast, ".trafoXML")
	trafo.PerElement = true

	return domain.StageDef{
		Name:         "align_maps",
		Tool:         "MapAlignerIdentification",
		Kind:         domain.StageKindTool,
		MergedSample: MergedSample,
		Inputs:       []domain.InputDef{collected("ids", "id_filtered")},
		Outputs:      []domain.OutputDef{trafo},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "ids"),
			out("-trafo_out", "trafo"),
			threads(),
		}},
	}
}

func rtTransformMzML() domain.StageDef {
	return domain.StageDef{
		Name: "rt_transform_mzml",
		Tool: "MapRTTransformer",
		Kind: domain.StageKindTool,
		Inputs: []domain.InputDef{
			perItem("mzml", "spectra"),
			flatten("trafo", "trafo"),
		},
		Outputs: []domain.OutputDef{output("mzml", "aligned_mzml", domain.ChannelQueue, "_aligned.mzML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "mzml"),
			in("-trafo_in", "trafo"),
			out("-out", "mzml"),
			threads(),
		}},
	}
}

func rtTransformIdXML() domain.StageDef {
	return domain.StageDef{
		Name: "rt_transform_idxml",
		Tool: "MapRTTransformer",
		Kind: domain.StageKindTool,
		Inputs: []domain.InputDef{
			perItem("ids", "id_pep"),
			flatten("trafo", "trafo"),
		},
		Outputs: []domain.OutputDef{output("ids", "aligned_ids", domain.ChannelQueue, "_aligned.idXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "ids"),
			in("-trafo_in", "trafo"),
			out("-out", "ids"),
			threads(),
		}},
	}
}

func mergeIDs() domain.StageDef {
	return domain.StageDef{
		Name:         "merge_ids",
		Tool:         "IDMerger",
		Kind:         domain.StageKindTool,
		MergedSample: MergedSample,
		Inputs:       []domain.InputDef{collected("ids", "aligned_ids")},
		Outputs:      []domain.OutputDef{output("ids", "merged_ids", domain.ChannelQueue, ".idXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "ids"),
			out("-out", "ids"),
			threads(),
			literal("-annotate_file_origin", "true"),
			literal("-merge_proteins_add_PSMs", ""),
		}},
	}
}

func extractFeatures() domain.StageDef {
	return domain.StageDef{
		Name:    "extract_features",
		Tool:    "PSMFeatureExtractor",
		Kind:    domain.StageKindTool,
		Inputs:  []domain.InputDef{perItem("ids", "merged_ids")},
		Outputs: []domain.OutputDef{output("ids", "psm_features", domain.ChannelQueue, "_feat.idXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "ids"),
			out("-out", "ids"),
			threads(),
		}},
	}
}

func percolator() domain.StageDef {
	return domain.StageDef{
		Name:    "percolator",
		Tool:    "PercolatorAdapter",
		Kind:    domain.StageKindTool,
		Inputs:  []domain.InputDef{perItem("ids", "psm_features")},
		Outputs: []domain.OutputDef{output("ids", "percolated", domain.ChannelQueue, "_perc.idXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "ids"),
			out("-out", "ids"),
			threads(),
			param("-subset_max_train", "subset_max_train"),
			param("-decoy_pattern", "decoy_affix"),
			param("-train_FDR", "train_fdr"),
			param("-test_FDR", "test_fdr"),
			param("-description_correct", "description_correct_features"),
			literal("-score_type", "pep"),
			literal("-post_processing_tdc", ""),
		}},
	}
}

func filterIDs() domain.StageDef {
	return domain.StageDef{
		Name:    "filter_ids",
		Tool:    "IDFilter",
		Kind:    domain.StageKindTool,
		Inputs:  []domain.InputDef{perItem("ids", "percolated")},
		Outputs: []domain.OutputDef{output("ids", "filtered_ids", domain.ChannelBroadcast, "_filter.idXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "ids"),
			out("-out", "ids"),
			threads(),
			param("-score:pep", "psm_pep_fdr_cutoff"),
			param("-score:prot", "protein_level_fdr_cutoff"),
			literal("-remove_decoys", ""),
			literal("-delete_unreferenced_peptide_hits", ""),
		}},
	}
}

func quantifyFeatures() domain.StageDef {
	return domain.StageDef{
		Name: "quantify_features",
		Tool: "FeatureFinderIdentification",
		Kind: domain.StageKindTool,
		Inputs: []domain.InputDef{
			perItem("mzml", "aligned_mzml"),
			broadcast("ids", "filtered_ids"),
		},
		Outputs: []domain.OutputDef{output("features", "features", domain.ChannelQueue, ".featureXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "mzml"),
			in("-id", "ids"),
			out("-out", "features"),
			threads(),
		}},
		Parallelism: domain.Parallelism{MaxForks: 4},
	}
}

func linkFeatures() domain.StageDef {
	return domain.StageDef{
		Name:         "link_features",
		Tool:         "FeatureLinkerUnlabeledKD",
		Kind:         domain.StageKindTool,
		MergedSample: MergedSample,
		Inputs:       []domain.InputDef{collected("features", "features")},
		Outputs:      []domain.OutputDef{output("consensus", "linked", domain.ChannelQueue, ".consensusXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "features"),
			out("-out", "consensus"),
			threads(),
		}},
	}
}

func resolveConflicts() domain.StageDef {
	return domain.StageDef{
		Name:    "resolve_conflicts",
		Tool:    "IDConflictResolver",
		Kind:    domain.StageKindTool,
		Inputs:  []domain.InputDef{perItem("consensus", "linked")},
		Outputs: []domain.OutputDef{output("consensus", "resolved", domain.ChannelBroadcast, "_resolved.consensusXML")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "consensus"),
			out("-out", "consensus"),
			threads(),
		}},
	}
}

func exportMzTab() domain.StageDef {
	return domain.StageDef{
		Name:         "export_mztab",
		Tool:         "MzTabExporter",
		Kind:         domain.StageKindTool,
		MergedSample: MergedSample,
		Inputs:       []domain.InputDef{broadcast("consensus", "resolved")},
		Outputs:      []domain.OutputDef{output("mztab", "mztab", domain.ChannelQueue, ".mzTab")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "consensus"),
			out("-out", "mztab"),
			threads(),
		}},
	}
}

func exportConsensus() domain.StageDef {
	return domain.StageDef{
		Name:         "export_consensus",
		Tool:         "TextExporter",
		Kind:         domain.StageKindTool,
		MergedSample: MergedSample,
		Inputs:       []domain.InputDef{broadcast("consensus", "resolved")},
		Outputs:      []domain.OutputDef{output("table", "consensus_table", domain.ChannelQueue, ".csv")},
		Command: domain.CommandSpec{Args: []domain.Arg{
			in("-in", "consensus"),
			out("-out", "table"),
			threads(),
			literal("-separator", ","),
		}},
	}
}

func report() domain.StageDef {
	return domain.StageDef{
		Name:         ReportStage,
		Kind:         domain.StageKindBuiltin,
		MergedSample: MergedSample,
		Inputs:       []domain.InputDef{perItem("mztab", "mztab")},
		Outputs: []domain.OutputDef{
			output("html", "report_html", domain.ChannelQueue, "_report.html"),
			output("json", "report_json", domain.ChannelQueue, "_report.json"),
		},
	}
}
