// Package training 平衡传播（EqProp）梯度计算与训练循环。
//
// 梯度来自同一物理系统两个平衡态之差: 自由相和推动相。
// 对连接k，代价对其电导的梯度是推动态与自由态上
// 该连接压降平方差除以推动强度的离散形式。
package training

import (
	"fmt"
	"math"

	"github.com/emersonmde/eqprop/kcl"
	"github.com/emersonmde/eqprop/network"
)

// DefaultBranchLimit 分支偏离报警阈值 (V)。
// 合法的β量级推动只会让平衡点移动毫伏级；
// 偏离超过该值说明推动相牛顿解落到了另一个平衡分支。
const DefaultBranchLimit = 0.5

// Pattern 一个训练样本。
type Pattern struct {
	Inputs []float64 // 固定节点电压
	Target float64   // 目标差分电压 (V)
	Label  string    // 显示标签（可空）
}

// Options 梯度计算选项。
type Options struct {
	// OneSided 单侧推动模式。默认（false）为对称±β双推动，
	// 一次调用解两个推动相，一阶偏差自行抵消。
	// 单侧模式每次只解一个推动相，由Parity在调用间交替β符号
	// 来抵消单侧扰动的系统性一阶偏差，交替由调用方确定性驱动。
	OneSided bool
	// Parity 步奇偶（单侧模式下奇数步取-β）。
	Parity int
	// BranchLimit 分支偏离报警阈值，0取默认。
	BranchLimit float64
	// FreeVoltages 已算好的自由相解（避免重复求解），nil则现场求解。
	FreeVoltages []float64
	// FreeGuess 自由相求解的初值（重试扰动用），nil用默认策略。
	FreeGuess []float64
	// Solver 底层求解参数，nil取默认。
	Solver *kcl.Options
}

// GradientResult 单样本梯度计算结果。
type GradientResult struct {
	Prediction float64   // 自由相输出差分电压 (V)
	Loss       float64   // 0.5*(target-prediction)^2
	Gradient   []float64 // 电导空间梯度，每连接一项（规范顺序）
	Free       []float64 // 自由相自由节点电压（下次热启动用）

	// BranchDistance 推动相与自由相电压的最大偏离 (V)。
	BranchDistance float64
	// BranchEscape 推动相疑似落到另一平衡分支。
	// 多平衡非线性系统的固有性质而非梯度公式缺陷，
	// 只报告，不静默忽略，也不强行"纠正"。
	BranchEscape bool
}

// Gradient 计算一个样本的EqProp梯度
// 自由相求解后在输出节点注入 ±β*(target-prediction) 的电流，
// 从自由相解热启动重解平衡（两相只差微小扰动，热启动避免
// 发散到其它分支），由压降平方差得到电导空间梯度。
// β须小到一阶近似成立，又大到电压差可从求解噪声中分辨。
// 参数:
//
//	net - 网络拓扑（只读）
//	inputs - 固定节点电压
//	weights - 连接电阻 (Ω)
//	target - 目标差分电压 (V)
//	beta - 推动强度
//	opt - 选项，nil取默认
//
// 返回:
//
//	梯度结果；任一相求解失败时返回带相位标注的错误，
//	绝不返回零值或垃圾梯度
func Gradient(net *network.Network, inputs, weights []float64, target, beta float64, opt *Options) (*GradientResult, error) {
	if opt == nil {
		opt = &Options{}
	}
	branchLimit := opt.BranchLimit
	if branchLimit <= 0 {
		branchLimit = DefaultBranchLimit
	}

	// 自由相
	free := opt.FreeVoltages
	if free == nil {
		solverOpt := solverOptions(opt)
		solverOpt.InitialGuess = opt.FreeGuess
		res, err := kcl.Solve(net, inputs, weights, solverOpt)
		if err != nil {
			return nil, fmt.Errorf("自由相求解失败: %w", err)
		}
		free = res.Voltages
	}

	pred := net.Prediction(free)
	errV := target - pred
	out := &GradientResult{
		Prediction: pred,
		Loss:       0.5 * errV * errV,
		Free:       free,
		Gradient:   make([]float64, net.NumWeights()),
	}

	allFree := fullVoltages(net, inputs, free)

	if opt.OneSided {
		// 单侧推动: 奇数步取-β，梯度公式的分母符号同步翻转
		b := beta
		if opt.Parity%2 != 0 {
			b = -beta
		}
		vNudge, err := nudgePhase(net, inputs, weights, free, net.NudgeCurrents(b, errV), opt)
		if err != nil {
			return nil, fmt.Errorf("推动相求解失败: %w", err)
		}
		out.BranchDistance = branchDistance(free, vNudge)
		allNudge := fullVoltages(net, inputs, vNudge)
		for w, c := range net.Connections {
			dvN := allNudge[c[0]] - allNudge[c[1]]
			dvF := allFree[c[0]] - allFree[c[1]]
			out.Gradient[w] = (dvN*dvN - dvF*dvF) / (2 * b)
		}
	} else {
		// 对称推动: ±β两相，一阶偏差抵消
		vPos, err := nudgePhase(net, inputs, weights, free, net.NudgeCurrents(beta, errV), opt)
		if err != nil {
			return nil, fmt.Errorf("正推动相求解失败: %w", err)
		}
		vNeg, err := nudgePhase(net, inputs, weights, free, net.NudgeCurrents(-beta, errV), opt)
		if err != nil {
			return nil, fmt.Errorf("负推动相求解失败: %w", err)
		}
		out.BranchDistance = math.Max(branchDistance(free, vPos), branchDistance(free, vNeg))
		allPos := fullVoltages(net, inputs, vPos)
		allNeg := fullVoltages(net, inputs, vNeg)
		for w, c := range net.Connections {
			dvP := allPos[c[0]] - allPos[c[1]]
			dvN := allNeg[c[0]] - allNeg[c[1]]
			out.Gradient[w] = (dvP*dvP - dvN*dvN) / (4 * beta)
		}
	}

	out.BranchEscape = out.BranchDistance > branchLimit
	return out, nil
}

// nudgePhase 从自由相解热启动的推动相求解。
func nudgePhase(net *network.Network, inputs, weights, free, nudge []float64, opt *Options) ([]float64, error) {
	solverOpt := solverOptions(opt)
	solverOpt.Nudge = nudge
	solverOpt.InitialGuess = free
	res, err := kcl.Solve(net, inputs, weights, solverOpt)
	if err != nil {
		return nil, err
	}
	return res.Voltages, nil
}

// solverOptions 复制调用方的求解参数（不污染共享结构）。
func solverOptions(opt *Options) *kcl.Options {
	if opt.Solver == nil {
		return &kcl.Options{}
	}
	cp := *opt.Solver
	return &cp
}

// fullVoltages 拼接固定∪自由的全节点电压向量。
func fullVoltages(net *network.Network, inputs, free []float64) []float64 {
	all := make([]float64, 0, net.NumNodes())
	all = append(all, inputs...)
	return append(all, free...)
}

// branchDistance 两个平衡态的最大电压偏离。
func branchDistance(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		if diff := math.Abs(a[i] - b[i]); diff > d {
			d = diff
		}
	}
	return d
}
