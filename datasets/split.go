package datasets

import (
	"fmt"
	"math/rand"
)

// Split partitions source groups into train/validation/test sets. Members
// are indices into the group ordering the split was made over. The three
// partitions are pairwise disjoint and their union covers every group.
type Split struct {
	Train []int
	Val   []int
	Test  []int
	Seed  int64
}

// SplitGroups partitions n source groups by identity using a seeded
// shuffle followed by proportional slicing. The same seed and n always
// produce the same partitioning. Splitting operates on whole groups,
// never on individual event rows.
func SplitGroups(n int, trainFrac, valFrac float64, seed int64) (*Split, error) {
	if n <= 0 {
		return nil, &DataError{Msg: "cannot split zero groups"}
	}
	if trainFrac <= 0 || valFrac < 0 || trainFrac+valFrac >= 1 {
		return nil, fmt.Errorf("invalid split fractions train=%v val=%v", trainFrac, valFrac)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

	nTrain := int(float64(n) * trainFrac)
	nVal := int(float64(n) * valFrac)
	if nTrain == 0 {
		nTrain = 1
	}
	if nTrain+nVal > n {
		nVal = n - nTrain
	}

	s := &Split{Seed: seed}
	s.Train = append(s.Train, order[:nTrain]...)
	s.Val = append(s.Val, order[nTrain:nTrain+nVal]...)
	s.Test = append(s.Test, order[nTrain+nVal:]...)
	return s, nil
}

// Summary reports partition counts and percentages.
func (s *Split) Summary() string {
	total := len(s.Train) + len(s.Val) + len(s.Test)
	pct := func(k int) float64 {
		if total == 0 {
			return 0
		}
		return 100 * float64(k) / float64(total)
	}
	return fmt.Sprintf("split (seed=%d): train=%d (%.1f%%) val=%d (%.1f%%) test=%d (%.1f%%)",
		s.Seed, len(s.Train), pct(len(s.Train)), len(s.Val), pct(len(s.Val)), len(s.Test), pct(len(s.Test)))
}
