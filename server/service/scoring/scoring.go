package scoring

import (
	"fmt"

	"github.com/pkg/errors"
)

// Result carries the scored assessment: per-instrument totals, severity
// labels, and MBI subscale breakdowns where applicable.
type Result struct {
	Scores    map[string]int               `json:"scores"`
	Severity  map[string]string            `json:"severityLevels"`
	Subscales map[string]map[string]string `json:"subscales,omitempty"`
}

// Flatten renders merged answers as the fixed 201-item vector. Each
// instrument's answers fill its slot in order; unanswered slots hold the
// Missing sentinel. Answers beyond an instrument's item count are
// dropped, as are answers for slotless instruments.
func Flatten(merged map[string][]int) []int {
	vector := make([]int, VectorSize)
	for i := range vector {
		vector[i] = Missing
	}
	for name, answers := range merged {
		inst, ok := instruments[name]
		if !ok || inst.StartIndex < 0 {
			continue
		}
		for i, v := range answers {
			if i >= inst.ItemCount {
				break
			}
			vector[inst.StartIndex+i] = v
		}
	}
	return vector
}

// Score evaluates the full flattened vector.
func Score(vector []int) (*Result, error) {
	if len(vector) != VectorSize {
		return nil, errors.Errorf("expected %d responses, got %d", VectorSize, len(vector))
	}

	result := &Result{
		Scores:   make(map[string]int, len(instruments)),
		Severity: make(map[string]string, len(instruments)),
	}

	for name, inst := range instruments {
		if inst.StartIndex < 0 {
			continue
		}
		answers := vector[inst.StartIndex : inst.StartIndex+inst.ItemCount]
		switch inst.Code {
		case "ASRS":
			score, severity := scoreASRS(answers, inst)
			result.Scores[name] = score
			result.Severity[name] = severity
		case "MBI":
			score, severity, subscales := scoreMBI(answers)
			result.Scores[name] = score
			result.Severity[name] = severity
			if result.Subscales == nil {
				result.Subscales = make(map[string]map[string]string)
			}
			result.Subscales[name] = subscales
		case "MDQ":
			score, severity := scoreMDQ(answers)
			result.Scores[name] = score
			result.Severity[name] = severity
		default:
			score := sumAnswers(answers)
			result.Scores[name] = score
			result.Severity[name] = bandLabel(inst.Bands, score)
		}
	}

	return result, nil
}

func sumAnswers(answers []int) int {
	total := 0
	for _, v := range answers {
		if v == Missing {
			continue
		}
		total += v
	}
	return total
}

func bandLabel(bands []SeverityBand, score int) string {
	for _, band := range bands {
		if score >= band.Min && score <= band.Max {
			return band.Label
		}
	}
	return "Unknown severity"
}

// asrsShaded marks which ratings per item fall in the shaded scoring
// boxes of the ASRS v1.1 form.
var asrsShaded = [18][]int{
	{2, 3, 4}, {2, 3, 4}, {2, 3, 4},
	{3, 4}, {3, 4}, {3, 4},
	{3, 4}, {3, 4}, {2, 3, 4},
	{3, 4}, {3, 4}, {2, 3, 4},
	{3, 4}, {3, 4}, {3, 4},
	{2, 3, 4}, {3, 4}, {2, 3, 4},
}

// scoreASRS applies the ASRS screen: four or more shaded responses across
// the six Part A items is a positive screen regardless of the raw total.
func scoreASRS(answers []int, inst Instrument) (int, string) {
	rawTotal := sumAnswers(answers)

	partAShaded := 0
	for i := 0; i < 6 && i < len(answers); i++ {
		if answers[i] == Missing {
			continue
		}
		for _, shaded := range asrsShaded[i] {
			if answers[i] == shaded {
				partAShaded++
				break
			}
		}
	}

	if partAShaded >= 4 {
		return rawTotal, "Highly Consistent with Adult ADHD (Screen Positive)"
	}
	return rawTotal, bandLabel(inst.Bands, rawTotal)
}

// scoreMBI splits the 22 items into emotional exhaustion (1-7),
// depersonalization (8-14), and personal accomplishment (15-22)
// subscales, each banded separately.
func scoreMBI(answers []int) (int, string, map[string]string) {
	var ee, dp, pa int
	for i, v := range answers {
		if v == Missing {
			v = 0
		}
		switch {
		case i < 7:
			ee += v
		case i < 14:
			dp += v
		default:
			pa += v
		}
	}

	eeLevel := "High"
	if ee <= 16 {
		eeLevel = "Low"
	} else if ee <= 26 {
		eeLevel = "Moderate"
	}
	dpLevel := "High"
	if dp <= 6 {
		dpLevel = "Low"
	} else if dp <= 12 {
		dpLevel = "Moderate"
	}
	paLevel := "Low Accomplishment"
	if pa >= 39 {
		paLevel = "High Accomplishment"
	} else if pa >= 32 {
		paLevel = "Moderate"
	}

	severity := fmt.Sprintf("EE: %s, DP: %s, PA: %s", eeLevel, dpLevel, paLevel)
	subscales := map[string]string{
		"EE": fmt.Sprintf("%d (%s)", ee, eeLevel),
		"DP": fmt.Sprintf("%d (%s)", dp, dpLevel),
		"PA": fmt.Sprintf("%d (%s)", pa, paLevel),
	}
	return ee + dp + pa, severity, subscales
}

// scoreMDQ is a three-criteria screen: seven or more symptom items
// endorsed, symptom clustering, and at least moderate impairment.
func scoreMDQ(answers []int) (int, string) {
	symptomCount := 0
	for i := 0; i < 13 && i < len(answers); i++ {
		if answers[i] == 1 {
			symptomCount++
		}
	}
	clustering := len(answers) > 13 && answers[13] == 1
	impairment := len(answers) > 14 && answers[14] >= 2

	if symptomCount >= 7 && clustering && impairment {
		return 1, "Positive Bipolar Screen (All 3 Criteria Met)"
	}
	return 0, "Negative Screen"
}
