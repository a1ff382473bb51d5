package effmap

import "math"

// Smooth applies a 2D Gaussian filter to a grid, used to take the contour
// jitter out of coarse maps before rendering. Kernel weights falling outside
// the grid are dropped and the remainder renormalized, so edges are not
// pulled toward zero. Sigma <= 0 returns a copy of the input.
func Smooth(grid [][]float64, sigma float64) [][]float64 {
	rows := len(grid)
	if rows == 0 {
		return nil
	}
	cols := len(grid[0])

	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}

	if sigma <= 0 {
		for i := range grid {
			copy(out[i], grid[i])
		}
		return out
	}

	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			var sum, weight float64
			for di := -radius; di <= radius; di++ {
				for dj := -radius; dj <= radius; dj++ {
					ii, jj := i+di, j+dj
					if ii < 0 || ii >= rows || jj < 0 || jj >= cols {
						continue
					}
					w := kernel[di+radius] * kernel[dj+radius]
					sum += w * grid[ii][jj]
					weight += w
				}
			}
			out[i][j] = sum / weight
		}
	}

	return out
}

// Clamp raises every value below floor to floor, matching the reference
// rendering that pins the color scale's low end for readability
func Clamp(grid [][]float64, floor float64) [][]float64 {
	out := make([][]float64, len(grid))
	for i := range grid {
		out[i] = make([]float64, len(grid[i]))
		for j, v := range grid[i] {
			if v < floor {
				v = floor
			}
			out[i][j] = v
		}
	}
	return out
}
