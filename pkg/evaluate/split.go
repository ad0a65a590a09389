package evaluate

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/opst/ripen/pkg/dataset"
	"github.com/opst/ripen/pkg/domain"
)

// Split is a pair of partitions of a Dataset.
type Split struct {
	Train dataset.Dataset
	Test  dataset.Dataset
}

// StratifiedSplit splits the dataset into a training partition and a held-out (test) partition,
// keeping the ratio of classes.
//
// For each class, round(testFraction * rows of the class) rows go to the test partition,
// but at least one row of the class is left in the training partition.
// Rows are chosen randomly with the seed, and each partition keeps the order in the dataset.
func StratifiedSplit(ds dataset.Dataset, testFraction float64, seed int64) (Split, error) {
	if testFraction <= 0 || 1 <= testFraction {
		return Split{}, fmt.Errorf("test fraction should be in (0, 1): %f", testFraction)
	}

	byClass := map[int][]int{}
	for i, y := range ds.Y {
		byClass[y] = append(byClass[y], i)
	}

	rng := rand.New(rand.NewSource(seed))
	train, test := []int{}, []int{}
	for _, class := range []int{0, 1} {
		rows := byClass[class]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

		nTest := int(math.Round(testFraction * float64(len(rows))))
		nTest = min(nTest, len(rows)-1)
		nTest = max(nTest, 0)
		test = append(test, rows[:nTest]...)
		train = append(train, rows[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)

	if len(test) == 0 {
		return Split{}, fmt.Errorf(
			"%w: no rows are left for the held-out partition (%d rows)",
			domain.ErrInsufficientData, ds.Len(),
		)
	}

	return Split{Train: ds.Subset(train), Test: ds.Subset(test)}, nil
}

// kFold returns indexes of rows in each fold.
//
// Indexes are shuffled with the seed, then the first n % k folds have one more row than others.
func kFold(n int, k int, seed int64) [][]int {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([][]int, k)
	start := 0
	for i := range folds {
		size := n / k
		if i < n%k {
			size += 1
		}
		folds[i] = perm[start : start+size]
		start += size
	}
	return folds
}
