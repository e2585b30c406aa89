package fs

import "slices"

// SmallFileUpperBound is the largest file a small unit may hold.
const SmallFileUpperBound = 10 << 20

// BlockOverhead approximates the bytes each block costs beyond its payload:
// the block header in the data copy plus its manifest entry.
const BlockOverhead = 64

// BlockSizes are the candidate block sizes for a directory put, 512 B to
// 128 MiB.
var BlockSizes = func() []int64 {
	var sizes []int64
	for bs := int64(0x200); bs <= 0x8_000_000; bs <<= 1 {
		sizes = append(sizes, bs)
	}
	return sizes
}()

// Stats summarises the files of a tree for block size selection.
type Stats struct {
	FileSizes []int64
	PathLens  []int
}

// Stats returns the size and logical path length of every file.
func (t *Tree) Stats() Stats {
	var st Stats
	for _, f := range t.Files() {
		st.FileSizes = append(st.FileSizes, f.Size)
		st.PathLens = append(st.PathLens, len(f.Logical))
	}
	return st
}

// BlockSizeCost is the overhead of storing a tree with one block size.
type BlockSizeCost struct {
	BlockSize int64
	Loss      int64 // padding in the last block of each file
	Tables    int64 // per-block overhead plus the path index
}

// Total returns the combined overhead.
func (c BlockSizeCost) Total() int64 {
	return c.Loss + c.Tables
}

// BlockSizeCosts evaluates every candidate block size up to limit.
func BlockSizeCosts(st Stats, limit int64) []BlockSizeCost {
	var index int64
	for _, n := range st.PathLens {
		index += int64(n)
	}

	var costs []BlockSizeCost
	for _, bs := range BlockSizes {
		if bs > limit {
			break
		}
		c := BlockSizeCost{BlockSize: bs, Tables: index}
		for _, size := range st.FileSizes {
			c.Loss += (bs - size%bs) % bs
			c.Tables += (size + bs - 1) / bs * BlockOverhead
		}
		costs = append(costs, c)
	}
	return costs
}

// ChooseBlockSize returns the candidate block size up to limit with the
// least total overhead, preferring the smaller size on a tie. A limit below
// the smallest candidate is returned as is.
func ChooseBlockSize(st Stats, limit int64) BlockSizeCost {
	costs := BlockSizeCosts(st, limit)
	if len(costs) == 0 {
		return BlockSizeCost{BlockSize: limit}
	}
	best := costs[0]
	for _, c := range costs[1:] {
		if c.Total() < best.Total() {
			best = c
		}
	}
	return best
}

// Merge folds every small unit into its closest ancestor that is not small,
// or into the root, so that small directories travel with the directory
// above them. Parent indices are rewritten to the merged units.
func (t *Tree) Merge() {
	into := make([]int, len(t.Units))
	for i, u := range t.Units {
		into[i] = i
		if i == 0 || !u.Small() {
			continue
		}
		ancestor := u.Parent
		for ancestor > 0 && t.Units[ancestor].Small() {
			ancestor = t.Units[ancestor].Parent
		}
		into[i] = ancestor
	}

	for i, target := range into {
		if target == i {
			continue
		}
		t.Units[target].Files = append(t.Units[target].Files, t.Units[i].Files...)
		t.Units[target].Size += t.Units[i].Size
	}

	newIndex := make([]int, len(t.Units))
	var kept []*Unit
	for i, u := range t.Units {
		if into[i] != i {
			continue
		}
		newIndex[i] = len(kept)
		kept = append(kept, u)
	}
	for i, u := range t.Units {
		if into[i] == i && u.Parent >= 0 {
			u.Parent = newIndex[into[u.Parent]]
		}
	}
	t.Units = kept
}

// Split cuts the units into two contiguous runs whose sizes are as close as
// possible. On a tie the first run takes more units.
func Split(units []*Unit) (first, second []*Unit) {
	var total int64
	for _, u := range units {
		total += u.Size
	}

	cut, best := 0, total
	var left int64
	for k := 0; k <= len(units); k++ {
		if k > 0 {
			left += units[k-1].Size
		}
		diff := left - (total - left)
		if diff < 0 {
			diff = -diff
		}
		if diff <= best {
			cut, best = k, diff
		}
	}
	return slices.Clip(units[:cut]), units[cut:]
}
