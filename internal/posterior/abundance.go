package posterior

import (
	"gonum.org/v1/gonum/stat"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
)

// SeasonRow is the posterior of mean abundance per site in one season.
type SeasonRow struct {
	Season int // 1-based
	Mean   float64
	Lower  float64
	Upper  float64
}

// SeasonAbundance averages N over sites within each draw, then summarizes
// those averages across the pooled draws of the selected chains.
func SeasonAbundance(fit *mcmc.Fit, chains []int) ([]SeasonRow, error) {
	selected, err := fit.Select(chains)
	if err != nil {
		return nil, err
	}
	d := fit.Model.Dims()
	total := 0
	for _, c := range selected {
		total += c.Len()
	}
	if total == 0 {
		return nil, emptyError("season abundance")
	}

	out := make([]SeasonRow, d.Seasons)
	avg := make([]float64, 0, total)
	for t := range d.Seasons {
		avg = avg[:0]
		for _, c := range selected {
			for k := range c.Len() {
				n := c.Abundance(k)
				sum := 0
				for i := range d.Sites {
					sum += n[d.Cell(i, t)]
				}
				avg = append(avg, float64(sum)/float64(d.Sites))
			}
		}
		lo, hi := interval(avg)
		out[t] = SeasonRow{Season: t + 1, Mean: stat.Mean(avg, nil), Lower: lo, Upper: hi}
	}
	return out, nil
}
