package dataset

import (
	"fmt"
	"math/rand"
)

// #region split
// Splits is a train/validation/test partition.
type Splits struct {
	Train Set
	Val   Set
	Test  Set
}

// Ratios are the train and validation fractions; the rest is test.
type Ratios struct {
	Train float64
	Val   float64
}

// DefaultRatios returns 70/15/15.
func DefaultRatios() Ratios {
	return Ratios{Train: 0.70, Val: 0.15}
}

// StratifiedSplit shuffles each class with a seeded source and cuts it by
// ratios, so every split keeps the label distribution. Classes too small to
// cut keep their examples in train.
func StratifiedSplit(s Set, r Ratios, seed int64) (Splits, error) {
	if r.Train <= 0 || r.Val < 0 || r.Train+r.Val > 1 {
		return Splits{}, fmt.Errorf("invalid split ratios %.2f/%.2f", r.Train, r.Val)
	}
	if err := s.Validate(); err != nil {
		return Splits{}, fmt.Errorf("split: %w", err)
	}
	rng := rand.New(rand.NewSource(seed))

	byLabel := make([][]Example, len(s.Labels))
	for _, ex := range s.Examples {
		byLabel[ex.Label] = append(byLabel[ex.Label], ex)
	}

	var train, val, test []Example
	for _, items := range byLabel {
		items = append([]Example(nil), items...)
		rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		n := len(items)
		nTrain := int(r.Train * float64(n))
		nVal := int(r.Val * float64(n))
		if nTrain == 0 {
			nTrain = n - nVal
		}
		if nTrain+nVal > n {
			nVal = n - nTrain
		}
		train = append(train, items[:nTrain]...)
		val = append(val, items[nTrain:nTrain+nVal]...)
		test = append(test, items[nTrain+nVal:]...)
	}
	shuffle := func(xs []Example) {
		rng.Shuffle(len(xs), func(i, j int) { xs[i], xs[j] = xs[j], xs[i] })
	}
	shuffle(train)
	shuffle(val)
	shuffle(test)

	return Splits{Train: s.subset(train), Val: s.subset(val), Test: s.subset(test)}, nil
}

// #endregion split

// #region class-weights
// ClassWeights returns inverse-frequency weights normalized to mean 1 over the
// classes present. Absent classes get weight 0.
func ClassWeights(s Set) []float64 {
	counts := s.ClassCounts()
	weights := make([]float64, len(counts))
	total, classes := 0, 0
	for _, c := range counts {
		if c > 0 {
			total += c
			classes++
		}
	}
	if classes == 0 {
		return weights
	}
	var sum float64
	for i, c := range counts {
		if c == 0 {
			continue
		}
		weights[i] = float64(total) / (float64(classes) * float64(c))
		sum += weights[i]
	}
	avg := sum / float64(classes)
	for i := range weights {
		weights[i] /= avg
	}
	return weights
}

// #endregion class-weights
