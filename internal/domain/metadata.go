package domain

import "fmt"

// ReactionType classifies the role of a measured species.
type ReactionType string

const (
	ReactionInert    ReactionType = "inert"
	ReactionReactant ReactionType = "reactant"
	ReactionProduct  ReactionType = "product"
)

// ParseReactionType validates s as a ReactionType.
func ParseReactionType(s string) (ReactionType, error) {
	switch rt := ReactionType(s); rt {
	case ReactionInert, ReactionReactant, ReactionProduct:
		return rt, nil
	default:
		return "", fmt.Errorf("unknown reaction type %q (want inert, reactant or product)", s)
	}
}

// PulseIteration describes one measured channel within an experiment.
// Records are attached to their ExperimentMetadata before persistence and
// are not modified afterwards.
type PulseIteration struct {
	// AMU is the atomic mass unit of the measured species.
	AMU float64 `json:"amu"`

	// Gain is the mass spectrometer gain setting.
	Gain int `json:"gain"`

	// InjectedTime is the time at which the species was injected, in seconds.
	InjectedTime float64 `json:"injected_time"`

	// ProbeTime is the injection time of the probe molecule, 0 if none.
	ProbeTime float64 `json:"probe_time"`

	ReactionType ReactionType `json:"reaction_type"`

	// PulseWidth is the injection pulse width, related to the amount injected.
	PulseWidth float64 `json:"pulse_width"`
}

// DefaultPulseIteration returns a PulseIteration with default values.
func DefaultPulseIteration() PulseIteration {
	return PulseIteration{
		AMU:          40.0,
		Gain:         8,
		InjectedTime: 0.0,
		ProbeTime:    0.0,
		ReactionType: ReactionInert,
		PulseWidth:   99.0,
	}
}

// ExperimentMetadata describes one experiment and is the companion record of
// the canonical table stored under the same ID.
type ExperimentMetadata struct {
	Catalyst             string  `json:"catalyst"`
	CatalystAmtMg        float64 `json:"catalyst_amt_mg"`
	CatalystPercentWt    float64 `json:"catalyst_percent_wt"`
	CatalystZoneLengthCm float64 `json:"catalyst_zone_length_cm"`
	Support              string  `json:"support"`

	Creator          string `json:"creator"`
	DateCreated      string `json:"date_created"`
	PaperDOI         string `json:"paper_DOI"`
	PreparationNotes string `json:"preparation_notes"`

	ReactorLengthCm  float64 `json:"reactor_length_cm"`
	Temperature      float64 `json:"temperature"`
	InjectionAmtNmol float64 `json:"injection_amt_nmol"`
	TimeDeltaS       float64 `json:"time_delta_s"`

	// ID is the fixed-width sequence string joining metadata and table files.
	ID string `json:"ID"`

	// Name is human readable, typically derived from the source path.
	Name string `json:"name"`

	// PulseIterations is ordered by channel; its length equals the number of
	// channels ingested for the experiment.
	PulseIterations []PulseIteration `json:"pulse_iteration"`
}

// DefaultMetadata returns an ExperimentMetadata with default values and an
// empty pulse iteration list.
func DefaultMetadata() ExperimentMetadata {
	return ExperimentMetadata{
		Catalyst:             "Pt",
		CatalystAmtMg:        1.0,
		CatalystPercentWt:    1.0,
		CatalystZoneLengthCm: 1.0,
		Support:              "SiO2",
		Creator:              "John Gleaves",
		DateCreated:          "1997-12-25",
		PaperDOI:             "none",
		PreparationNotes:     "Washed, baked, etc",
		ReactorLengthCm:      1.0,
		Temperature:          25.0,
		InjectionAmtNmol:     1.0,
		TimeDeltaS:           0.001,
		ID:                   "0001",
		Name:                 "Pt/SiO2 conversion experiment",
		PulseIterations:      []PulseIteration{},
	}
}

// Clone returns a copy of m that does not share its pulse iteration list.
func (m ExperimentMetadata) Clone() ExperimentMetadata {
	out := m
	out.PulseIterations = make([]PulseIteration, len(m.PulseIterations))
	copy(out.PulseIterations, m.PulseIterations)
	return out
}
