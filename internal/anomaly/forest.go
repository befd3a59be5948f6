package anomaly

import (
	"fmt"
	"math"
	"math/rand"
)

// IsolationForest scores points by average isolation path length across
// random trees. More easily separated points score closer to 1.
// Fitting happens offline; a loaded forest is read-only.
type IsolationForest struct {
	Trees       []*isoTree `json:"trees"`
	NumTrees    int        `json:"num_trees"`
	SampleSize  int        `json:"sample_size"`
	HeightLimit int        `json:"height_limit"`
}

type isoTree struct {
	Root *isoNode `json:"root"`
}

type isoNode struct {
	Leaf     bool     `json:"leaf"`
	Size     int      `json:"size"`
	Dim      int      `json:"dim,omitempty"`
	SplitVal float64  `json:"split_val,omitempty"`
	Left     *isoNode `json:"left,omitempty"`
	Right    *isoNode `json:"right,omitempty"`
}

// NewIsolationForest creates an unfitted forest with the given shape.
func NewIsolationForest(numTrees, sampleSize int) *IsolationForest {
	if numTrees <= 0 {
		numTrees = 100
	}
	if sampleSize <= 0 {
		sampleSize = 256
	}
	return &IsolationForest{
		NumTrees:    numTrees,
		SampleSize:  sampleSize,
		HeightLimit: int(math.Ceil(math.Log2(float64(sampleSize)))),
	}
}

// Fit builds the random trees from reference samples. The seed makes
// fitted artifacts reproducible.
func (f *IsolationForest) Fit(samples [][]float64, seed int64) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples to fit")
	}

	rng := rand.New(rand.NewSource(seed))
	n := len(samples)
	f.Trees = make([]*isoTree, f.NumTrees)
	for i := 0; i < f.NumTrees; i++ {
		idxs := rng.Perm(n)
		m := f.SampleSize
		if m > n {
			m = n
		}
		sample := make([][]float64, m)
		for j := 0; j < m; j++ {
			sample[j] = samples[idxs[j]]
		}
		f.Trees[i] = &isoTree{Root: buildTree(rng, sample, 0, f.HeightLimit)}
	}
	return nil
}

func buildTree(rng *rand.Rand, samples [][]float64, height, heightLimit int) *isoNode {
	if len(samples) <= 1 || height >= heightLimit {
		return &isoNode{Leaf: true, Size: len(samples)}
	}

	dims := len(samples[0])
	dim := rng.Intn(dims)
	minv, maxv := samples[0][dim], samples[0][dim]
	for i := 1; i < len(samples); i++ {
		v := samples[i][dim]
		if v < minv {
			minv = v
		}
		if v > maxv {
			maxv = v
		}
	}
	if minv == maxv {
		return &isoNode{Leaf: true, Size: len(samples)}
	}

	split := minv + rng.Float64()*(maxv-minv)
	left := make([][]float64, 0, len(samples))
	right := make([][]float64, 0, len(samples))
	for _, row := range samples {
		if row[dim] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{Leaf: true, Size: len(samples)}
	}

	return &isoNode{
		Dim:      dim,
		SplitVal: split,
		Left:     buildTree(rng, left, height+1, heightLimit),
		Right:    buildTree(rng, right, height+1, heightLimit),
	}
}

// cFactor is the average unsuccessful-search path length in a BST of n
// points, used to normalize path lengths.
func cFactor(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 2.0*(math.Log(float64(n-1))+0.5772156649) - 2.0*float64(n-1)/float64(n)
}

func pathLength(node *isoNode, x []float64, depth int) float64 {
	if node.Leaf {
		if node.Size <= 1 {
			return float64(depth)
		}
		return float64(depth) + cFactor(node.Size)
	}
	if x[node.Dim] < node.SplitVal {
		return pathLength(node.Left, x, depth+1)
	}
	return pathLength(node.Right, x, depth+1)
}

// Score returns the anomaly score in [0,1], higher meaning more anomalous.
// An unfitted forest scores everything 0.
func (f *IsolationForest) Score(x []float64) float64 {
	if f == nil || len(f.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range f.Trees {
		sum += pathLength(t.Root, x, 0)
	}
	avgPath := sum / float64(len(f.Trees))
	c := cFactor(f.SampleSize)
	if c <= 0 {
		c = 1
	}
	return math.Pow(2, -avgPath/c)
}

// Fitted reports whether the forest carries trees.
func (f *IsolationForest) Fitted() bool {
	return f != nil && len(f.Trees) > 0
}
