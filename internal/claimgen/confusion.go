package claimgen

import "sync"

// Confusion is a binary confusion matrix of alert predictions against
// fraud labels. It is safe for concurrent use.
type Confusion struct {
	mu sync.Mutex

	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int
}

// Add records one prediction.
func (c *Confusion) Add(predicted, actual bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case predicted && actual:
		c.TruePositives++
	case predicted && !actual:
		c.FalsePositives++
	case !predicted && !actual:
		c.TrueNegatives++
	default:
		c.FalseNegatives++
	}
}

// Snapshot returns a copy of the counts.
func (c *Confusion) Snapshot() (tp, fp, tn, fn int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.TruePositives, c.FalsePositives, c.TrueNegatives, c.FalseNegatives
}

// Total is the number of recorded predictions.
func (c *Confusion) Total() int {
	tp, fp, tn, fn := c.Snapshot()
	return tp + fp + tn + fn
}

// Precision is the share of alerts that were fraud.
func (c *Confusion) Precision() float64 {
	tp, fp, _, _ := c.Snapshot()
	return ratio(tp, tp+fp)
}

// Recall is the share of fraud that raised an alert.
func (c *Confusion) Recall() float64 {
	tp, _, _, fn := c.Snapshot()
	return ratio(tp, tp+fn)
}

// F1 is the harmonic mean of precision and recall.
func (c *Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Accuracy is the share of correct predictions.
func (c *Confusion) Accuracy() float64 {
	tp, fp, tn, fn := c.Snapshot()
	return ratio(tp+tn, tp+fp+tn+fn)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
