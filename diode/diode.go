package diode

import "math"

// expArgLimit 指数参数上限。
// 牛顿迭代收敛前可能给出远超工作范围的试探电压，
// 不截断会直接溢出为 +Inf，污染残差和雅可比。
const expArgLimit = 500.0

// Params 二极管模型参数（肖特基二极管，反并联激活对使用）。
// 所有实例共享同一组不可变常量，禁止模块级可变状态。
type Params struct {
	Is float64 // 反向饱和电流 (A)
	N  float64 // 发射系数
	VT float64 // 热电压 Vt = kT/q (V)
}

// BAT42 标准参数（来自BAT42数据手册，27°C）。
var BAT42 = Params{
	Is: 1e-7,
	N:  1.1,
	VT: 0.02585,
}

// Scale 尺度电压 N*Vt。
func (p Params) Scale() float64 { return p.N * p.VT }

// clampExp 截断后的指数计算。
func clampExp(x float64) float64 {
	if x > expArgLimit {
		x = expArgLimit
	} else if x < -expArgLimit {
		x = -expArgLimit
	}
	return math.Exp(x)
}

// Current 单只正向二极管的电流和差分电导
// 参数:
//
//	v - 二极管两端电压（阳极-阴极）(V)
//
// 返回:
//
//	i - 电流 Is*(exp(v/(N*Vt))-1) (A)
//	g - 差分电导 dI/dV (S)
func (p Params) Current(v float64) (i, g float64) {
	nVt := p.Scale()
	e := clampExp(v / nVt)
	i = p.Is * (e - 1)
	g = p.Is * e / nVt
	return i, g
}

// PairCurrent 反并联二极管对流入节点的净电流和差分电导
// 两只方向相反的二极管并联在节点和参考轨之间，净电流为两个
// 单向电流之差，等价于 -2*Is*sinh(x)，关于零压差为奇函数、
// 连续且单调（含v=0处的导数）。
// 参数:
//
//	v - 节点电压减参考轨电压 (V)
//
// 返回:
//
//	i - 流入节点的净电流 (A)，v>0 时为负（向参考轨泄流）
//	g - 差分电导 dI/dV (S)，恒为负
func (p Params) PairCurrent(v float64) (i, g float64) {
	nVt := p.Scale()
	x := v / nVt
	if x > expArgLimit {
		x = expArgLimit
	} else if x < -expArgLimit {
		x = -expArgLimit
	}
	i = -2 * p.Is * math.Sinh(x)
	g = -2 * p.Is * math.Cosh(x) / nVt
	return i, g
}
