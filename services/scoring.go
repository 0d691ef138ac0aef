package services

// Line scoring over a board layout and the set of marked numbers. Scores are
// always recomputed from scratch with a full sweep of every candidate line
// (N rows, N columns, both diagonals) rather than tracked incrementally; for
// word-sized boards the sweep is O(N²) and far harder to get wrong.

// ScoreBoard counts the complete lines on a layout. A line is complete when
// every one of its N cells holds a marked number.
func ScoreBoard(layout [][]int, marked map[int]bool) int {
	n := len(layout)
	score := 0

	for row := 0; row < n; row++ {
		if lineComplete(layout, marked, row, 0, 0, 1) {
			score++
		}
	}
	for col := 0; col < n; col++ {
		if lineComplete(layout, marked, 0, col, 1, 0) {
			score++
		}
	}
	if lineComplete(layout, marked, 0, 0, 1, 1) {
		score++
	}
	if lineComplete(layout, marked, 0, n-1, 1, -1) {
		score++
	}

	return score
}

// CompletedLinesForMark returns every number on a complete line that passes
// through the cell holding the given number, deduplicated in first-seen
// order. Used for the ScoreUpdated payload, not for scoring itself.
func CompletedLinesForMark(layout [][]int, marked map[int]bool, number int) []int {
	n := len(layout)
	var lines []int
	seen := make(map[int]bool)
	add := func(v int) {
		if !seen[v] {
			seen[v] = true
			lines = append(lines, v)
		}
	}

	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			if layout[row][col] != number {
				continue
			}

			if lineComplete(layout, marked, row, 0, 0, 1) {
				for c := 0; c < n; c++ {
					add(layout[row][c])
				}
			}
			if lineComplete(layout, marked, 0, col, 1, 0) {
				for r := 0; r < n; r++ {
					add(layout[r][col])
				}
			}
			if row == col && lineComplete(layout, marked, 0, 0, 1, 1) {
				for i := 0; i < n; i++ {
					add(layout[i][i])
				}
			}
			if row+col == n-1 && lineComplete(layout, marked, 0, n-1, 1, -1) {
				for i := 0; i < n; i++ {
					add(layout[i][n-1-i])
				}
			}
			return lines
		}
	}

	return lines
}

func lineComplete(layout [][]int, marked map[int]bool, startRow, startCol, rowDelta, colDelta int) bool {
	n := len(layout)
	for i := 0; i < n; i++ {
		if !marked[layout[startRow+i*rowDelta][startCol+i*colDelta]] {
			return false
		}
	}
	return true
}
