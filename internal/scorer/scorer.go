// Package scorer computes a word's score and gem count from a grid and a
// validated path. It is a pure function with no knowledge of dictionaries,
// turns, or sessions.
package scorer

import "spellcast/internal/gridgen"

// lengthBonusThreshold and lengthBonus implement spec §4.4's flat bonus.
const (
	lengthBonusThreshold = 6
	lengthBonus          = 10
)

// Result is the outcome of scoring one word submission.
type Result struct {
	Score int
	Gems  int
}

// Score computes (score, gems) for positions traced on grid, per spec §4.4:
// each letter's base value is multiplied by 2 for DoubleLetter or 3 for
// TripleLetter; any DoubleWord cell on the path doubles the summed word
// score (but never the length bonus); paths of 6+ cells add a flat +10
// after the word multiplier is applied.
func Score(grid *gridgen.Grid, positions []gridgen.Position) Result {
	wordScore := 0
	gems := 0
	doubleWord := false

	for _, p := range positions {
		cell := grid.At(p)

		letterScore := cell.Value
		switch cell.Multiplier {
		case gridgen.DoubleLetter:
			letterScore *= 2
		case gridgen.TripleLetter:
			letterScore *= 3
		case gridgen.DoubleWord:
			doubleWord = true
		}

		wordScore += letterScore

		if cell.HasGem {
			gems++
		}
	}

	if doubleWord {
		wordScore *= 2
	}

	if len(positions) >= lengthBonusThreshold {
		wordScore += lengthBonus
	}

	return Result{Score: wordScore, Gems: gems}
}
