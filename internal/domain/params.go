package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrInvalidParam — значение параметра запуска вне допустимого диапазона.
var ErrInvalidParam = errors.New("invalid run parameter")

// RunParams — именованные параметры запуска.
//
// Все поля имеют значения по умолчанию (DefaultParams) и могут быть
// переопределены из YAML файла или флагами --param key=value.
// Ключи тегов mapstructure — единственные имена, на которые
// может ссылаться CommandSpec (ArgParam).
type RunParams struct {
	// Поиск по базе.
	PrecursorMassTolerance     float64 `json:"precursor_mass_tolerance" yaml:"precursor_mass_tolerance" mapstructure:"precursor_mass_tolerance"`
	PrecursorMassToleranceUnit string  `json:"precursor_mass_tolerance_unit" yaml:"precursor_mass_tolerance_unit" mapstructure:"precursor_mass_tolerance_unit"`
	FragmentMassTolerance      float64 `json:"fragment_mass_tolerance" yaml:"fragment_mass_tolerance" mapstructure:"fragment_mass_tolerance"`
	FragmentMassToleranceUnit  string  `json:"fragment_mass_tolerance_unit" yaml:"fragment_mass_tolerance_unit" mapstructure:"fragment_mass_tolerance_unit"`
	Enzyme                     string  `json:"enzyme" yaml:"enzyme" mapstructure:"enzyme"`
	NumEnzymeTermini           string  `json:"num_enzyme_termini" yaml:"num_enzyme_termini" mapstructure:"num_enzyme_termini"`
	AllowedMissedCleavages     int     `json:"allowed_missed_cleavages" yaml:"allowed_missed_cleavages" mapstructure:"allowed_missed_cleavages"`
	FixedMods                  string  `json:"fixed_mods" yaml:"fixed_mods" mapstructure:"fixed_mods"`
	VariableMods               string  `json:"variable_mods" yaml:"variable_mods" mapstructure:"variable_mods"`
	MinPrecursorCharge         int     `json:"min_precursor_charge" yaml:"min_precursor_charge" mapstructure:"min_precursor_charge"`
	MaxPrecursorCharge         int     `json:"max_precursor_charge" yaml:"max_precursor_charge" mapstructure:"max_precursor_charge"`
	NumHits                    int     `json:"num_hits" yaml:"num_hits" mapstructure:"num_hits"`

	// Decoy база.
	DecoyAffix string `json:"decoy_affix" yaml:"decoy_affix" mapstructure:"decoy_affix"`
	AffixType  string `json:"affix_type" yaml:"affix_type" mapstructure:"affix_type"`

	// FDR.
	PSMPepFDRCutoff       float64 `json:"psm_pep_fdr_cutoff" yaml:"psm_pep_fdr_cutoff" mapstructure:"psm_pep_fdr_cutoff"`
	ProteinLevelFDRCutoff float64 `json:"protein_level_fdr_cutoff" yaml:"protein_level_fdr_cutoff" mapstructure:"protein_level_fdr_cutoff"`
	FDRLevel              string  `json:"fdr_level" yaml:"fdr_level" mapstructure:"fdr_level"`

	// Percolator.
	TrainFDR                   float64 `json:"train_fdr" yaml:"train_fdr" mapstructure:"train_fdr"`
	TestFDR                    float64 `json:"test_fdr" yaml:"test_fdr" mapstructure:"test_fdr"`
	SubsetMaxTrain             int     `json:"subset_max_train" yaml:"subset_max_train" mapstructure:"subset_max_train"`
	DescriptionCorrectFeatures int     `json:"description_correct_features" yaml:"description_correct_features" mapstructure:"description_correct_features"`

	// Квантификация.
	QuantificationMethod string `json:"quantification_method" yaml:"quantification_method" mapstructure:"quantification_method"`
	TargetedOnly         bool   `json:"targeted_only" yaml:"targeted_only" mapstructure:"targeted_only"`
	ProteinQuant         string `json:"protein_quant" yaml:"protein_quant" mapstructure:"protein_quant"`

	// Ресурсы и размещение.
	MaxCPUs int    `json:"max_cpus" yaml:"max_cpus" mapstructure:"max_cpus"`
	OutDir  string `json:"outdir" yaml:"outdir" mapstructure:"outdir"`
	WorkDir string `json:"workdir" yaml:"workdir" mapstructure:"workdir"`
}

// DefaultParams возвращает параметры по умолчанию.
func DefaultParams() RunParams {
	return RunParams{
		PrecursorMassTolerance:     5,
		PrecursorMassToleranceUnit: "ppm",
		FragmentMassTolerance:      0.03,
		FragmentMassToleranceUnit:  "Da",
		Enzyme:                     "Trypsin",
		NumEnzymeTermini:           "fully",
		AllowedMissedCleavages:     2,
		FixedMods:                  "Carbamidomethyl (C)",
		VariableMods:               "Oxidation (M)",
		MinPrecursorCharge:         2,
		MaxPrecursorCharge:         4,
		NumHits:                    1,
		DecoyAffix:                 "DECOY_",
		AffixType:                  "prefix",
		PSMPepFDRCutoff:            0.10,
		ProteinLevelFDRCutoff:      0.05,
		FDRLevel:                   "peptide-level-fdrs",
		TrainFDR:                   0.05,
		TestFDR:                    0.05,
		SubsetMaxTrain:             300000,
		DescriptionCorrectFeatures: 0,
		QuantificationMethod:       "feature_intensity",
		TargetedOnly:               true,
		ProteinQuant:               "unique_peptides",
		MaxCPUs:                    1,
		OutDir:                     "./results",
		WorkDir:                    "./work",
	}
}

// Validate проверяет значения параметров.
func (p RunParams) Validate() error {
	switch {
	case p.PrecursorMassTolerance <= 0:
		return fmt.Errorf("%w: precursor_mass_tolerance must be positive", ErrInvalidParam)
	case p.FragmentMassTolerance <= 0:
		return fmt.Errorf("%w: fragment_mass_tolerance must be positive", ErrInvalidParam)
	case !oneOf(p.PrecursorMassToleranceUnit, "ppm", "Da"):
		return fmt.Errorf("%w: precursor_mass_tolerance_unit must be ppm or Da", ErrInvalidParam)
	case !oneOf(p.FragmentMassToleranceUnit, "ppm", "Da"):
		return fmt.Errorf("%w: fragment_mass_tolerance_unit must be ppm or Da", ErrInvalidParam)
	case !oneOf(p.NumEnzymeTermini, "fully", "semi", "none"):
		return fmt.Errorf("%w: num_enzyme_termini must be fully, semi or none", ErrInvalidParam)
	case p.AllowedMissedCleavages < 0:
		return fmt.Errorf("%w: allowed_missed_cleavages must not be negative", ErrInvalidParam)
	case p.MinPrecursorCharge < 1 || p.MaxPrecursorCharge < p.MinPrecursorCharge:
		return fmt.Errorf("%w: precursor charge range %d:%d", ErrInvalidParam, p.MinPrecursorCharge, p.MaxPrecursorCharge)
	case !oneOf(p.AffixType, "prefix", "suffix"):
		return fmt.Errorf("%w: affix_type must be prefix or suffix", ErrInvalidParam)
	case p.DecoyAffix == "":
		return fmt.Errorf("%w: decoy_affix must not be empty", ErrInvalidParam)
	case !fraction(p.PSMPepFDRCutoff) || !fraction(p.ProteinLevelFDRCutoff):
		return fmt.Errorf("%w: FDR cutoffs must be in (0, 1]", ErrInvalidParam)
	case !fraction(p.TrainFDR) || !fraction(p.TestFDR):
		return fmt.Errorf("%w: percolator FDRs must be in (0, 1]", ErrInvalidParam)
	case !oneOf(p.FDRLevel, "psm-level-fdrs", "peptide-level-fdrs", "protein-level-fdrs"):
		return fmt.Errorf("%w: unknown fdr_level %q", ErrInvalidParam, p.FDRLevel)
	case p.MaxCPUs < 1:
		return fmt.Errorf("%w: max_cpus must be at least 1", ErrInvalidParam)
	case p.OutDir == "":
		return fmt.Errorf("%w: outdir must not be empty", ErrInvalidParam)
	case p.WorkDir == "":
		return fmt.Errorf("%w: workdir must not be empty", ErrInvalidParam)
	}
	return nil
}

// Values возвращает параметры в виде строк для подстановки в команды.
// Включает производный ключ precursor_charge ("min:max").
func (p RunParams) Values() map[string]string {
	return map[string]string{
		"precursor_mass_tolerance":      formatFloat(p.PrecursorMassTolerance),
		"precursor_mass_tolerance_unit": p.PrecursorMassToleranceUnit,
		"fragment_mass_tolerance":       formatFloat(p.FragmentMassTolerance),
		"fragment_mass_tolerance_unit":  p.FragmentMassToleranceUnit,
		"enzyme":                        p.Enzyme,
		"num_enzyme_termini":            p.NumEnzymeTermini,
		"allowed_missed_cleavages":      strconv.Itoa(p.AllowedMissedCleavages),
		"fixed_mods":                    p.FixedMods,
		"variable_mods":                 p.VariableMods,
		"min_precursor_charge":          strconv.Itoa(p.MinPrecursorCharge),
		"max_precursor_charge":          strconv.Itoa(p.MaxPrecursorCharge),
		"precursor_charge":              fmt.Sprintf("%d:%d", p.MinPrecursorCharge, p.MaxPrecursorCharge),
		"num_hits":                      strconv.Itoa(p.NumHits),
		"decoy_affix":                   p.DecoyAffix,
		"affix_type":                    p.AffixType,
		"psm_pep_fdr_cutoff":            formatFloat(p.PSMPepFDRCutoff),
		"protein_level_fdr_cutoff":      formatFloat(p.ProteinLevelFDRCutoff),
		"fdr_level":                     p.FDRLevel,
		"train_fdr":                     formatFloat(p.TrainFDR),
		"test_fdr":                      formatFloat(p.TestFDR),
		"subset_max_train":              strconv.Itoa(p.SubsetMaxTrain),
		"description_correct_features":  strconv.Itoa(p.DescriptionCorrectFeatures),
		"quantification_method":         p.QuantificationMethod,
		"targeted_only":                 strconv.FormatBool(p.TargetedOnly),
		"protein_quant":                 p.ProteinQuant,
		"max_cpus":                      strconv.Itoa(p.MaxCPUs),
		"outdir":                        p.OutDir,
		"workdir":                       p.WorkDir,
	}
}

// Lookup возвращает строковое значение параметра по ключу.
func (p RunParams) Lookup(key string) (string, bool) {
	v, ok := p.Values()[key]
	return v, ok
}

// ParamKeys возвращает отсортированный список допустимых ключей.
func ParamKeys() []string {
	values := DefaultParams().Values()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsParamKey проверяет, является ли key известным параметром.
func IsParamKey(key string) bool {
	_, ok := DefaultParams().Lookup(key)
	return ok
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func fraction(v float64) bool {
	return v > 0 && v <= 1
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
