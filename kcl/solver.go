// Package kcl 求解电阻/二极管网络的KCL稳态平衡。
//
// 对每个自由节点n，残差 F_n 为全部流入电流之和:
// 线性项来自权重连接 (V_other-V_n)/R，非线性项来自反并联二极管对，
// 外部注入（推动电流）直接叠加。解 F(v)=0 用阻尼牛顿法，
// 雅可比由连接表加盖（线性非对角项）和二极管差分电导（对角修正）装配。
package kcl

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/emersonmde/eqprop/network"
)

// 默认迭代参数。
const (
	DefaultMaxIterations = 100   // 牛顿迭代上限
	DefaultTolerance     = 1e-10 // 残差无穷范数收敛阈值 (A)
	minDamping           = 1.0 / 256.0
)

// ConvergenceError 收敛失败。
// 迭代预算内残差未降到阈值以下，或雅可比矩阵奇异。
// 求解器不内部重试，重试策略（扰动初值重解）由调用方决定。
type ConvergenceError struct {
	Iterations int     // 已执行的迭代次数
	Residual   float64 // 最终残差无穷范数 (A)
	Tolerance  float64 // 要求的阈值 (A)
	Cause      error   // 底层原因（如矩阵奇异），可为nil
}

func (e *ConvergenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("牛顿迭代在第 %d 次失败: %v", e.Iterations, e.Cause)
	}
	return fmt.Sprintf("牛顿迭代 %d 次未收敛: 残差 %.3e 超过阈值 %.3e",
		e.Iterations, e.Residual, e.Tolerance)
}

func (e *ConvergenceError) Unwrap() error { return e.Cause }

// Options 求解选项。
type Options struct {
	// Nudge 自由节点注入电流向量（正值流入节点），nil表示无注入。
	Nudge []float64
	// InitialGuess 自由节点电压初值。nil时先精确求解纯电阻线性系统
	// 作为牛顿起点——绕开二极管雅可比在参考轨附近的退化驻点，
	// 这是正确性要求而非性能优化。
	InitialGuess []float64
	// MaxIterations 牛顿迭代上限，0表示默认。
	MaxIterations int
	// Tolerance 残差无穷范数阈值，0表示默认。
	Tolerance float64
}

// Result 求解结果。
type Result struct {
	Voltages   []float64 // 自由节点电压 (V)
	Iterations int       // 实际牛顿迭代次数
	Residual   float64   // 最终残差无穷范数 (A)
}

// Solve 求解网络平衡态
// 参数:
//
//	net - 网络拓扑（只读，可跨并发调用共享）
//	fixed - 固定节点钳位电压，长度NumFixed
//	weights - 每条连接的电阻 (Ω)，规范顺序
//	opt - 求解选项，nil取默认
//
// 返回:
//
//	自由节点电压向量；失败时返回 ConvergenceError
//
// 同一输入可能存在多个平衡点（二极管过渡区附近可双稳），
// 求解器不挑选"规范"解，确定性只来自初值的确定性。
func Solve(net *network.Network, fixed, weights []float64, opt *Options) (*Result, error) {
	if opt == nil {
		opt = &Options{}
	}
	maxIter := opt.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	tol := opt.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	if len(fixed) != net.NumFixed {
		return nil, fmt.Errorf("固定电压数量 %d 与拓扑 %d 不符", len(fixed), net.NumFixed)
	}
	if len(weights) != net.NumWeights() {
		return nil, fmt.Errorf("权重数量 %d 与连接数 %d 不符", len(weights), net.NumWeights())
	}

	nf := net.NumFree
	v := make([]float64, nf)
	if opt.InitialGuess != nil {
		copy(v, opt.InitialGuess)
	} else {
		guess, err := resistiveGuess(net, fixed, weights)
		if err != nil {
			return nil, err
		}
		copy(v, guess)
	}

	F := make([]float64, nf)
	J := mat.NewDense(nf, nf, nil)
	trial := make([]float64, nf)
	var lu mat.LU
	dx := mat.NewVecDense(nf, nil)
	rhs := mat.NewVecDense(nf, nil)

	res := assemble(net, fixed, weights, v, opt.Nudge, F, J)
	for iter := 0; ; iter++ {
		if res <= tol {
			return &Result{Voltages: v, Iterations: iter, Residual: res}, nil
		}
		if iter >= maxIter {
			return nil, &ConvergenceError{Iterations: iter, Residual: res, Tolerance: tol}
		}
		// 求解 J*dx = -F
		for i := 0; i < nf; i++ {
			rhs.SetVec(i, -F[i])
		}
		lu.Factorize(J)
		if err := lu.SolveVecTo(dx, false, rhs); err != nil {
			return nil, &ConvergenceError{Iterations: iter, Residual: res, Tolerance: tol, Cause: err}
		}
		// 阻尼回溯: 全步长残差不降则折半，避免越过二极管过渡区发散
		damping := 1.0
		for {
			for i := 0; i < nf; i++ {
				trial[i] = v[i] + damping*dx.AtVec(i)
			}
			trialRes := residual(net, fixed, weights, trial, opt.Nudge, F)
			if trialRes < res || damping <= minDamping {
				copy(v, trial)
				res = trialRes
				break
			}
			damping /= 2
		}
		// 下一轮迭代需要新雅可比
		res = assemble(net, fixed, weights, v, opt.Nudge, F, J)
	}
}

// assemble 装配残差向量和雅可比矩阵，返回残差无穷范数。
func assemble(net *network.Network, fixed, weights, v, nudge, F []float64, J *mat.Dense) float64 {
	nf := net.NumFree
	J.Zero()
	fillResidual(net, fixed, weights, v, nudge, F)

	// 线性非对角项: 连接(i,j)电导g对雅可比的加盖
	for w, c := range net.Connections {
		g := 1.0 / weights[w]
		iFree, jFree := c[0]-net.NumFixed, c[1]-net.NumFixed
		if jFree >= 0 {
			J.Set(jFree, jFree, J.At(jFree, jFree)-g)
			if iFree >= 0 {
				J.Set(jFree, iFree, J.At(jFree, iFree)+g)
			}
		}
		if iFree >= 0 {
			J.Set(iFree, iFree, J.At(iFree, iFree)-g)
			if jFree >= 0 {
				J.Set(iFree, jFree, J.At(iFree, jFree)+g)
			}
		}
	}
	// 二极管差分电导: 对角修正项
	for freeIdx, vRef := range net.DiodeNodes {
		_, gd := net.Diode.PairCurrent(v[freeIdx] - vRef)
		J.Set(freeIdx, freeIdx, J.At(freeIdx, freeIdx)+gd)
	}

	res := 0.0
	for i := 0; i < nf; i++ {
		if a := math.Abs(F[i]); a > res {
			res = a
		}
	}
	return res
}

// residual 只计算残差（阻尼回溯的试探点评估），返回无穷范数。
func residual(net *network.Network, fixed, weights, v, nudge, F []float64) float64 {
	fillResidual(net, fixed, weights, v, nudge, F)
	res := 0.0
	for i := range F {
		if a := math.Abs(F[i]); a > res {
			res = a
		}
	}
	return res
}

// fillResidual 每个自由节点的KCL残差: 流入电流之和。
func fillResidual(net *network.Network, fixed, weights, v, nudge, F []float64) {
	for i := range F {
		F[i] = 0
	}
	// 连接电流，符号约定: 电流从c[0]流向c[1]
	for w, c := range net.Connections {
		vi := nodeVoltage(net, fixed, v, c[0])
		vj := nodeVoltage(net, fixed, v, c[1])
		current := (vi - vj) / weights[w]
		if jFree := c[1] - net.NumFixed; jFree >= 0 {
			F[jFree] += current
		}
		if iFree := c[0] - net.NumFixed; iFree >= 0 {
			F[iFree] -= current
		}
	}
	// 二极管对的并联泄流
	for freeIdx, vRef := range net.DiodeNodes {
		i, _ := net.Diode.PairCurrent(v[freeIdx] - vRef)
		F[freeIdx] += i
	}
	// 外部注入（推动电流）
	if nudge != nil {
		for i := range F {
			F[i] += nudge[i]
		}
	}
}

// nodeVoltage 全局节点索引取电压。
func nodeVoltage(net *network.Network, fixed, free []float64, idx int) float64 {
	if idx < net.NumFixed {
		return fixed[idx]
	}
	return free[idx-net.NumFixed]
}
