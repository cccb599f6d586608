package selection

import "fmt"

// Split is one time-ordered train/test partition of row positions.
type Split struct {
	Train []int
	Test  []int
}

// TimeSeriesSplit partitions n rows into k expanding-window splits. Each test
// block has n/(k+1) rows and follows its training rows; nothing is shuffled.
// k shrinks when n is too small to give every split a test row.
func TimeSeriesSplit(n, k int) ([]Split, error) {
	if k < 2 {
		k = 2
	}
	if n/(k+1) < 1 {
		k = n - 1
	}
	if k < 2 {
		return nil, fmt.Errorf("%w: %d rows cannot form 2 time-ordered splits", ErrInsufficientData, n)
	}
	size := n / (k + 1)
	out := make([]Split, 0, k)
	for i := 0; i < k; i++ {
		end := n - (k-i)*size
		s := Split{Train: allRows(end)}
		for t := end; t < end+size; t++ {
			s.Test = append(s.Test, t)
		}
		out = append(out, s)
	}
	return out, nil
}
