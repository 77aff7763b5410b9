package returns

import "math"

// Pearson 只使用 x、y 两侧都不是 NaN 的位置计算相关系数。
// 有效样本少于 2 或任一侧方差为 0 时返回 NaN。
func Pearson(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}

	var count int
	var sumX, sumY float64
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		count++
		sumX += x[i]
		sumY += y[i]
	}
	if count < 2 {
		return math.NaN()
	}
	meanX := sumX / float64(count)
	meanY := sumY / float64(count)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return math.NaN()
	}
	r := cov / math.Sqrt(varX*varY)
	// 浮点误差可能让结果略微越界
	return math.Max(-1, math.Min(1, r))
}

// Round 按 places 位小数四舍五入。
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Finite 判断值既不是 NaN 也不是 Inf。
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
