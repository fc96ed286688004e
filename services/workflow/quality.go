package workflow

// QualityMetrics accumulates quality scores reported with node completions.
// Each field is the running mean of the samples that carried it.
type QualityMetrics struct {
	Accuracy     float64 `json:"accuracy"`
	Efficiency   float64 `json:"efficiency"`
	Safety       float64 `json:"safety"`
	Satisfaction float64 `json:"satisfaction"`
	Samples      int     `json:"samples"`

	counts [4]int
}

// qualityKey is the completion payload field holding per-node scores, e.g.
//
//	{"quality": {"accuracy": 92, "safety": 100}}
const qualityKey = "quality"

// fold merges the scores found in a completion payload, if any.
func (q *QualityMetrics) fold(data map[string]any) {
	scores, ok := data[qualityKey].(map[string]any)
	if !ok {
		return
	}
	fields := [4]*float64{&q.Accuracy, &q.Efficiency, &q.Safety, &q.Satisfaction}
	names := [4]string{"accuracy", "efficiency", "safety", "satisfaction"}

	seen := false
	for i, name := range names {
		v, ok := toFloat64(scores[name])
		if !ok {
			continue
		}
		seen = true
		q.counts[i]++
		*fields[i] += (v - *fields[i]) / float64(q.counts[i])
	}
	if seen {
		q.Samples++
	}
}
