// Package scoring converts a completed 201-item answer vector into
// per-instrument clinical scores and severity labels. The layout and
// banding follow the standard screening instruments (PHQ, ASRS, AUDIT,
// BES, DAST-10, GAD-7, ISI, MBI, MDQ, OCI-R, PCL-5, PDSS, PHQ-9, PSS,
// SPIN).
package scoring

// VectorSize is the total item count across all instrument slots.
const VectorSize = 201

// Missing marks an unanswered slot in the flattened vector. Scorers
// treat it as zero.
const Missing = -1

// SeverityBand maps an inclusive score range to its label.
type SeverityBand struct {
	Min   int
	Max   int
	Label string
}

// Instrument describes one screening questionnaire: its conversational
// name, the underlying clinical instrument code, its slot in the
// flattened vector, and its severity banding.
type Instrument struct {
	Name       string
	Code       string
	StartIndex int
	ItemCount  int
	Bands      []SeverityBand
}

// Names lists the instruments in conversational probe order. This is the
// canonical order used when flattening answers.
var Names = []string{
	"Stress",
	"Anxiety",
	"Depression",
	"Drug Abuse",
	"Insomnia",
	"Panic",
	"Bipolar disorder (BD)",
	"Obsessive compulsive disorder (OCD)",
	"Post-traumatic stress disorder (PTSD)",
	"Social anxiety",
	"Phobia",
	"Burnout",
	"Binge eating / Eating disorders",
	"ADD / ADHD",
	"Substance or Alcohol Use Issues",
}

// instruments keys the vector layout by conversational name. "Phobia"
// carries its own item count and banding but no slot in the 201-item
// layout (StartIndex -1); the "Depression Secondary" PHQ-9 slot has no
// dedicated conversational instrument.
var instruments = map[string]Instrument{
	"Depression": {
		Name: "Depression", Code: "PHQ", StartIndex: 0, ItemCount: 15,
		Bands: []SeverityBand{
			{0, 0, "No Phobia"},
			{1, 15, "Mild-Moderate"},
			{16, 25, "Moderate-Severe"},
			{26, 120, "Very Severe"},
		},
	},
	"ADD / ADHD": {
		Name: "ADD / ADHD", Code: "ASRS", StartIndex: 15, ItemCount: 18,
		Bands: []SeverityBand{
			{0, 30, "Low"},
			{31, 39, "Mild to Moderate"},
			{40, 49, "High"},
			{50, 72, "Very High"},
		},
	},
	"Substance or Alcohol Use Issues": {
		Name: "Substance or Alcohol Use Issues", Code: "AUDIT", StartIndex: 33, ItemCount: 10,
		Bands: []SeverityBand{
			{0, 7, "Low Risk"},
			{8, 15, "Hazardous"},
			{16, 19, "Harmful"},
			{20, 40, "Dependent"},
		},
	},
	"Binge eating / Eating disorders": {
		Name: "Binge eating / Eating disorders", Code: "BES", StartIndex: 43, ItemCount: 16,
		Bands: []SeverityBand{
			{0, 17, "Minimal/No Binge Eating"},
			{18, 26, "Mild to moderate binge eating"},
			{27, 46, "Severe binge eating"},
		},
	},
	"Drug Abuse": {
		Name: "Drug Abuse", Code: "DAST10", StartIndex: 59, ItemCount: 10,
		Bands: []SeverityBand{
			{0, 0, "No Problems"},
			{1, 2, "Low Level"},
			{3, 5, "Moderate Level"},
			{6, 8, "Substantial Level"},
			{9, 10, "Severe Level"},
		},
	},
	"Anxiety": {
		Name: "Anxiety", Code: "GAD7", StartIndex: 69, ItemCount: 7,
		Bands: []SeverityBand{
			{0, 4, "Minimal"},
			{5, 9, "Mild"},
			{10, 14, "Moderate"},
			{15, 21, "Severe"},
		},
	},
	"Insomnia": {
		Name: "Insomnia", Code: "ISI", StartIndex: 76, ItemCount: 7,
		Bands: []SeverityBand{
			{0, 7, "No Insomnia"},
			{8, 14, "Subthreshold Insomnia"},
			{15, 21, "Moderate Insomnia"},
			{22, 28, "Severe Insomnia"},
		},
	},
	"Burnout": {
		Name: "Burnout", Code: "MBI", StartIndex: 83, ItemCount: 22,
		Bands: []SeverityBand{
			{0, 100, "MBI Scale"},
		},
	},
	"Bipolar disorder (BD)": {
		Name: "Bipolar disorder (BD)", Code: "MDQ", StartIndex: 105, ItemCount: 15,
		Bands: []SeverityBand{
			{0, 0, "Negative Screen"},
			{1, 1, "Positive Bipolar Screen (All 3 Criteria Met)"},
		},
	},
	"Obsessive compulsive disorder (OCD)": {
		Name: "Obsessive compulsive disorder (OCD)", Code: "OCI_R", StartIndex: 120, ItemCount: 18,
		Bands: []SeverityBand{
			{0, 20, "Below Threshold"},
			{21, 72, "Clinical Range"},
		},
	},
	"Post-traumatic stress disorder (PTSD)": {
		Name: "Post-traumatic stress disorder (PTSD)", Code: "PCL5", StartIndex: 138, ItemCount: 20,
		Bands: []SeverityBand{
			{0, 32, "Below Threshold"},
			{33, 80, "Probable PTSD"},
		},
	},
	"Panic": {
		Name: "Panic", Code: "PDSS", StartIndex: 158, ItemCount: 7,
		Bands: []SeverityBand{
			{0, 7, "Minimal"},
			{8, 10, "Mild"},
			{11, 15, "Moderate"},
			{16, 28, "Severe"},
		},
	},
	"Depression Secondary": {
		Name: "Depression Secondary", Code: "PHQ9", StartIndex: 165, ItemCount: 9,
		Bands: []SeverityBand{
			{0, 4, "Minimal"},
			{5, 9, "Mild"},
			{10, 14, "Moderate"},
			{15, 19, "Moderately Severe"},
			{20, 27, "Severe"},
		},
	},
	"Stress": {
		Name: "Stress", Code: "PSS", StartIndex: 174, ItemCount: 10,
		Bands: []SeverityBand{
			{0, 13, "Low Stress"},
			{14, 26, "Moderate Stress"},
			{27, 40, "High Stress"},
		},
	},
	"Phobia": {
		Name: "Phobia", Code: "PHOBIA", StartIndex: -1, ItemCount: 10,
		Bands: []SeverityBand{
			{0, 20, "No significant phobia"},
			{21, 40, "Mild phobia"},
			{41, 60, "Moderate phobia"},
			{61, 80, "Severe phobia"},
			{81, 100, "Extreme phobia"},
		},
	},
	"Social anxiety": {
		Name: "Social anxiety", Code: "SPIN", StartIndex: 184, ItemCount: 17,
		Bands: []SeverityBand{
			{0, 33, "Below Threshold"},
			{34, 42, "Social anxiety specific (Potential Social Phobia)"},
			{43, 80, "Generalized Social Interaction Anxiety"},
		},
	},
}

// Lookup returns the instrument definition for a conversational name.
func Lookup(name string) (Instrument, bool) {
	inst, ok := instruments[name]
	return inst, ok
}

// ExpectedAnswerCount returns the answer ceiling for an instrument, or 0
// when the name is unknown.
func ExpectedAnswerCount(name string) int {
	inst, ok := instruments[name]
	if !ok {
		return 0
	}
	return inst.ItemCount
}

// MinRequiredAnswers is the absolute answer floor used by the coarse
// completion gate.
const MinRequiredAnswers = 150
