package network

import (
	"fmt"
	"math"
	"math/rand"
)

// WeightBoundsError 权重越界错误。
// 训练循环内部用截断恢复，不抛该错误；
// 显式设置权重的外部API必须拒绝越界值而不是静默截断。
type WeightBoundsError struct {
	Index      int     // 权重索引（0基）
	Resistance float64 // 请求的电阻值 (Ω)
	Min, Max   float64 // 允许范围
}

func (e *WeightBoundsError) Error() string {
	return fmt.Sprintf("权重W%d电阻 %.1fΩ 超出物理范围 [%.1f, %.1f]Ω",
		e.Index+1, e.Resistance, e.Min, e.Max)
}

// WeightParams 权重电阻的物理约束（MCP4251-104数字电位器）。
type WeightParams struct {
	RSeries  float64 // 串联保护电阻 (Ω)
	RMin     float64 // 最小总电阻: 抽头256时 390 wiper + 1200 串联 (Ω)
	RMax     float64 // 最大总电阻: 抽头1时 100k + 1200 串联 (Ω)
	NTaps    int     // MCP4251抽头位置数
	RPotFull float64 // 电位器满量程电阻 (Ω)
}

// MCP4251 标准MCP4251-104参数。
var MCP4251 = WeightParams{
	RSeries:  1200.0,
	RMin:     1590.0,
	RMax:     101200.0,
	NTaps:    256,
	RPotFull: 100000.0,
}

// GMin 最小电导 1/RMax。
func (wp WeightParams) GMin() float64 { return 1.0 / wp.RMax }

// GMax 最大电导 1/RMin。
func (wp WeightParams) GMax() float64 { return 1.0 / wp.RMin }

// ClampConductance 把电导截断进物理范围 [GMin, GMax]。
// 模拟电位器的有界行程，防止发散到负电阻或无穷电阻。
func (wp WeightParams) ClampConductance(g float64) float64 {
	return math.Min(math.Max(g, wp.GMin()), wp.GMax())
}

// Check 校验电阻值是否在物理范围内
// 越界返回 WeightBoundsError。
func (wp WeightParams) Check(idx int, r float64) error {
	if r < wp.RMin || r > wp.RMax || math.IsNaN(r) {
		return &WeightBoundsError{Index: idx, Resistance: r, Min: wp.RMin, Max: wp.RMax}
	}
	return nil
}

// ResistanceToTap 连续电阻映射到最近的MCP4251抽头 (1..NTaps)。
func (wp WeightParams) ResistanceToTap(r float64) int {
	rPot := r - wp.RSeries
	tap := math.Round((wp.RPotFull - rPot) * float64(wp.NTaps) / wp.RPotFull)
	if tap < 1 {
		tap = 1
	}
	if tap > float64(wp.NTaps) {
		tap = float64(wp.NTaps)
	}
	return int(tap)
}

// TapToResistance 抽头位置映射回精确电阻。
func (wp WeightParams) TapToResistance(tap int) float64 {
	rPot := wp.RPotFull * (1.0 - float64(tap)/float64(wp.NTaps))
	return rPot + wp.RSeries
}

// Quantize 权重经硬件抽头往返量化
// 返回:
//
//	量化后的电阻数组和对应抽头位置
func (wp WeightParams) Quantize(weights []float64) ([]float64, []int) {
	taps := make([]int, len(weights))
	quant := make([]float64, len(weights))
	for i, r := range weights {
		taps[i] = wp.ResistanceToTap(r)
		quant[i] = wp.TapToResistance(taps[i])
	}
	return quant, taps
}

// RandomWeights 在电导空间均匀随机初始化权重
// 电导空间是梯度下降的自然空间，均匀采样避免偏向大电阻。
// 参数:
//
//	n - 权重数量
//	seed - 随机种子（可复现）
func (wp WeightParams) RandomWeights(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	weights := make([]float64, n)
	gMin, gMax := wp.GMin(), wp.GMax()
	for i := range weights {
		g := gMin + rng.Float64()*(gMax-gMin)
		weights[i] = 1.0 / g
	}
	return weights
}

// UniformWeights 全部权重取同一电阻值。
func UniformWeights(n int, r float64) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = r
	}
	return weights
}
