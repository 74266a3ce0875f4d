// Package gridgen generates and mutates the 5x5 letter grid that a game is
// played on: weighted-random letters, point values, and multiplier placement.
package gridgen

import "crypto/rand"

const (
	// Rows and Cols are the fixed grid dimensions.
	Rows = 5
	Cols = 5
)

// Multiplier is a per-cell score modifier.
type Multiplier int

const (
	None Multiplier = iota
	DoubleLetter
	TripleLetter
	DoubleWord
)

// Position is a (row, col) location on the grid.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// InBounds reports whether p is within the grid.
func (p Position) InBounds() bool {
	return p.Row >= 0 && p.Row < Rows && p.Col >= 0 && p.Col < Cols
}

// Cell is a single grid square.
type Cell struct {
	Letter     byte       `json:"letter"`
	Value      int        `json:"value"`
	Multiplier Multiplier `json:"multiplier"`
	HasGem     bool       `json:"has_gem"`
}

// Grid is a 5x5 matrix of cells, row-major.
type Grid struct {
	Cells [Rows][Cols]Cell `json:"cells"`
}

// At returns the cell at p.
func (g *Grid) At(p Position) Cell {
	return g.Cells[p.Row][p.Col]
}

// letterFrequency is an English-like letter frequency table, values in
// percent. The distribution need not sum to exactly 100; it is normalized
// at sample time.
var letterFrequency = map[byte]float64{
	'A': 8.17, 'B': 1.49, 'C': 2.78, 'D': 4.25, 'E': 12.70, 'F': 2.23,
	'G': 2.02, 'H': 6.09, 'I': 6.97, 'J': 0.15, 'K': 0.77, 'L': 4.03,
	'M': 2.41, 'N': 6.75, 'O': 7.51, 'P': 1.93, 'Q': 0.10, 'R': 5.99,
	'S': 6.33, 'T': 9.06, 'U': 2.76, 'V': 0.98, 'W': 2.36, 'X': 0.15,
	'Y': 1.97, 'Z': 0.07,
}

var letterOrder = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ")

// letterValue maps each letter to its point value.
var letterValue = map[byte]int{
	'A': 1, 'E': 1, 'I': 1, 'O': 1,
	'N': 2, 'R': 2, 'S': 2, 'T': 2,
	'D': 3, 'G': 3, 'L': 3,
	'B': 4, 'H': 4, 'M': 4, 'P': 4, 'U': 4, 'Y': 4,
	'C': 5, 'F': 5, 'V': 5, 'W': 5,
	'K': 6,
	'J': 7, 'X': 7,
	'Q': 8, 'Z': 8,
}

// randFloat64 returns a uniform value in [0, 1) using crypto/rand.
func randFloat64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failure is not recoverable on any supported platform.
		panic("gridgen: crypto/rand failure: " + err.Error())
	}
	u := uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
	// 53 bits of mantissa precision, same trick math/rand uses internally.
	return float64(u>>11) / float64(uint64(1)<<53)
}

// randIntn returns a uniform int in [0, n).
func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(randFloat64() * float64(n))
}

// sampleLetter draws one letter from letterFrequency via inverse-CDF.
func sampleLetter() byte {
	total := 0.0
	for _, f := range letterFrequency {
		total += f
	}

	target := randFloat64() * total
	cumulative := 0.0
	for _, l := range letterOrder {
		cumulative += letterFrequency[l]
		if target < cumulative {
			return l
		}
	}
	return letterOrder[len(letterOrder)-1]
}

func newCell() Cell {
	l := sampleLetter()
	return Cell{
		Letter:     l,
		Value:      letterValue[l],
		Multiplier: None,
		HasGem:     false,
	}
}

// Generate produces a fresh 5x5 grid: random letters drawn from the fixed
// frequency table, point values from the fixed letter->value map, and 3-5
// DoubleLetter plus 2-3 TripleLetter cells sprinkled at non-overlapping
// positions (collisions are skipped, so total multiplier count lands in
// [5, 8]).
func Generate() *Grid {
	g := &Grid{}
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			g.Cells[r][c] = newCell()
		}
	}

	placeMultipliers(g, DoubleLetter, 3+randIntn(3)) // 3-5
	placeMultipliers(g, TripleLetter, 2+randIntn(2))  // 2-3

	return g
}

// placeMultipliers sets count cells (that currently carry no multiplier) to
// m, skipping collisions with already-multiplied cells.
func placeMultipliers(g *Grid, m Multiplier, count int) {
	placed := 0
	// Bounded attempts: with at most 8 multiplier cells against 25 total,
	// a plain retry loop converges quickly without needing a shuffle.
	for attempts := 0; placed < count && attempts < count*50+50; attempts++ {
		r, c := randIntn(Rows), randIntn(Cols)
		if g.Cells[r][c].Multiplier == None {
			g.Cells[r][c].Multiplier = m
			placed++
		}
	}
}

// Replace resamples the letters (and clears multipliers) at positions,
// simulating tiles falling after a valid word is played.
func Replace(g *Grid, positions []Position) {
	for _, p := range positions {
		if !p.InBounds() {
			continue
		}
		g.Cells[p.Row][p.Col] = newCell()
	}
}

// CountMultipliers returns how many cells on the grid carry any multiplier.
// Used by tests to assert the [5, 8] invariant from spec §8.
func CountMultipliers(g *Grid) int {
	n := 0
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if g.Cells[r][c].Multiplier != None {
				n++
			}
		}
	}
	return n
}
