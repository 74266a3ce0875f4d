package scorer

import (
	"testing"

	"spellcast/internal/gridgen"
)

func cellGrid(cells map[[2]int]gridgen.Cell) *gridgen.Grid {
	g := &gridgen.Grid{}
	for r := 0; r < gridgen.Rows; r++ {
		for c := 0; c < gridgen.Cols; c++ {
			g.Cells[r][c] = gridgen.Cell{Letter: 'A', Value: 1}
		}
	}
	for pos, cell := range cells {
		g.Cells[pos[0]][pos[1]] = cell
	}
	return g
}

func TestScoreSeedScenarioTwoMoves(t *testing.T) {
	// spec §8 scenario 1: row 0 = H,E,A,R,T with values 4,1,1,1,2, no multipliers.
	g := cellGrid(map[[2]int]gridgen.Cell{
		{0, 0}: {Letter: 'H', Value: 4},
		{0, 1}: {Letter: 'E', Value: 1},
		{0, 2}: {Letter: 'A', Value: 1},
		{0, 3}: {Letter: 'R', Value: 1},
		{0, 4}: {Letter: 'T', Value: 2},
	})

	he := Score(g, []gridgen.Position{{Row: 0, Col: 0}, {Row: 0, Col: 1}})
	if he.Score != 5 {
		t.Fatalf("HE score = %d, want 5", he.Score)
	}

	art := Score(g, []gridgen.Position{{Row: 0, Col: 2}, {Row: 0, Col: 3}, {Row: 0, Col: 4}})
	if art.Score != 4 {
		t.Fatalf("ART score = %d, want 4", art.Score)
	}
}

func TestScoreDoubleWordAndLengthBonus(t *testing.T) {
	// spec §8 scenario 2: S(2,DW),P(4),E(1),L(3),L(3),S(2).
	g := cellGrid(map[[2]int]gridgen.Cell{
		{0, 0}: {Letter: 'S', Value: 2, Multiplier: gridgen.DoubleWord},
		{0, 1}: {Letter: 'P', Value: 4},
		{0, 2}: {Letter: 'E', Value: 1},
		{0, 3}: {Letter: 'L', Value: 3},
		{0, 4}: {Letter: 'L', Value: 3},
		{1, 4}: {Letter: 'S', Value: 2},
	})

	path := []gridgen.Position{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}, {Row: 0, Col: 3}, {Row: 0, Col: 4}, {Row: 1, Col: 4}}
	result := Score(g, path)
	if result.Score != 40 {
		t.Fatalf("SPELLS score = %d, want 40", result.Score)
	}
}

func TestScoreDoubleLetterAndTripleLetter(t *testing.T) {
	g := cellGrid(map[[2]int]gridgen.Cell{
		{0, 0}: {Letter: 'P', Value: 4, Multiplier: gridgen.DoubleLetter},
		{0, 1}: {Letter: 'P', Value: 4, Multiplier: gridgen.TripleLetter},
	})

	dl := Score(g, []gridgen.Position{{Row: 0, Col: 0}})
	if dl.Score != 8 {
		t.Fatalf("DL 4-point letter = %d, want 8", dl.Score)
	}

	tl := Score(g, []gridgen.Position{{Row: 0, Col: 1}})
	if tl.Score != 12 {
		t.Fatalf("TL 4-point letter = %d, want 12", tl.Score)
	}
}

func TestScoreGemsCollected(t *testing.T) {
	g := cellGrid(map[[2]int]gridgen.Cell{
		{0, 0}: {Letter: 'A', Value: 1, HasGem: true},
		{0, 1}: {Letter: 'A', Value: 1, HasGem: false},
	})

	result := Score(g, []gridgen.Position{{Row: 0, Col: 0}, {Row: 0, Col: 1}})
	if result.Gems != 1 {
		t.Fatalf("gems = %d, want 1", result.Gems)
	}
}

func TestScoreLengthBonusExactlyAtThreshold(t *testing.T) {
	g := cellGrid(nil)
	path := []gridgen.Position{
		{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2},
		{Row: 0, Col: 3}, {Row: 0, Col: 4}, {Row: 1, Col: 4},
	}
	result := Score(g, path)
	// 6 cells of value 1 = 6, plus the +10 bonus = 16.
	if result.Score != 16 {
		t.Fatalf("6-letter word score = %d, want 16", result.Score)
	}

	short := Score(g, path[:5])
	if short.Score != 5 {
		t.Fatalf("5-letter word score = %d, want 5 (no bonus)", short.Score)
	}
}
