package analysis

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

// Habitat levels written by Simulate.
var habitatLevels = []string{"forest", "grassland"}

// Simulation describes a synthetic survey.
type Simulation struct {
	Dims    survey.Dims
	Truth   model.Truth
	Seed    uint64
	Missing float64 // probability that a visit is not surveyed
}

// Simulate draws counts under constant parameters and attaches the
// covariates the built-in variants use. The covariates have no effect on
// the counts.
func Simulate(sim Simulation) (*survey.Dataset, error) {
	if sim.Missing < 0 || sim.Missing >= 1 {
		return nil, errors.Newf("missing rate %v must be in [0, 1)", sim.Missing).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	src := rand.NewPCG(sim.Seed, 0x6e6d6978)
	counts, _, err := model.Simulate(sim.Dims, sim.Truth, src)
	if err != nil {
		return nil, err
	}
	counts = model.Thin(counts, sim.Missing, src)

	d := sim.Dims
	hourDist := distuv.Uniform{Min: 6, Max: 12, Src: src}
	flowerDist := distuv.Gamma{Alpha: 2, Beta: 0.5, Src: src}

	hour := make([]float64, d.Slots())
	flowers := make([]float64, d.Slots())
	for i := range hour {
		hour[i] = hourDist.Rand()
		flowers[i] = flowerDist.Rand()
	}
	meanFlowers := make([]float64, d.Cells())
	for i := range d.Sites {
		for t := range d.Seasons {
			var sum float64
			for j := range d.Visits {
				sum += flowers[d.Slot(i, t, j)]
			}
			meanFlowers[d.Cell(i, t)] = sum / float64(d.Visits)
		}
	}
	rng := rand.New(src)
	habitat := make([]float64, d.Sites)
	for i := range habitat {
		habitat[i] = float64(rng.IntN(len(habitatLevels)))
	}

	ds, err := survey.NewDataset(counts,
		&survey.Covariate{Name: model.CovHour, Level: survey.LevelObservation, Values: hour},
		&survey.Covariate{Name: model.CovFlowerAbundance, Level: survey.LevelObservation, Values: flowers},
		&survey.Covariate{Name: model.CovMeanFlowerAbundance, Level: survey.LevelSeason, Values: meanFlowers},
		&survey.Covariate{Name: model.CovHabitatType, Level: survey.LevelSite, Categorical: true,
			LevelNames: habitatLevels, Values: habitat},
	)
	if err != nil {
		return nil, err
	}
	GetLogger().Debug("survey simulated",
		logger.String("dims", d.String()),
		logger.Int("observed", counts.ObservedCount()))
	return ds, nil
}
