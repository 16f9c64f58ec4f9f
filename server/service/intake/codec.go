package intake

import (
	"encoding/json"

	"github.com/mindgate/intake/plugin/ai/insights"
)

func encodeInsights(v insights.Insights) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeInsights(raw string, v *insights.Insights) error {
	return json.Unmarshal([]byte(raw), v)
}
