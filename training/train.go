package training

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/emersonmde/eqprop/network"
)

// State 训练状态机。Running为唯一非终止态。
type State int

const (
	Running   State = iota // 训练中
	Converged              // 全样本损失降到阈值以下
	Plateaued              // patience个epoch无改善
	Failed                 // 求解失败超出重试预算且整个epoch无可用样本
	Exhausted              // 达到最大epoch数
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Converged:
		return "Converged"
	case Plateaued:
		return "Plateaued"
	case Failed:
		return "Failed"
	case Exhausted:
		return "Exhausted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config 训练配置。零值字段取默认。
type Config struct {
	Epochs        int     // 最大epoch数，默认50000
	LearningRate  float64 // 电导空间学习率，默认5e-9
	Beta          float64 // 推动强度，默认1e-5
	Patience      int     // 无改善容忍epoch数，默认500
	MinDelta      float64 // 重置patience所需的最小损失改善，默认1e-6
	LossThreshold float64 // 收敛判定的epoch总损失阈值，默认0.005
	Retries       int     // 单样本求解失败重试预算，默认2
	Seed          int64   // 权重初始化与重试扰动种子

	// InitialWeights 初始电阻（nil则按Seed在电导空间均匀随机）。
	InitialWeights []float64

	// Online 逐样本更新（默认为整批累积后更新）。
	Online bool
	// Parallel 整批模式下并行评估各样本梯度
	//（样本互相独立，Network只读，电压状态各调用私有）。
	Parallel bool
	// OneSided 单侧推动，β符号按步奇偶交替。
	OneSided bool
	// BranchLimit 分支偏离报警阈值，0取默认。
	BranchLimit float64

	// LogFn 日志回调，nil用log.Printf。
	LogFn func(epoch int, loss float64, preds []float64)
	// LogInterval 日志间隔epoch数，默认5000。
	LogInterval int
}

func (cfg Config) withDefaults() Config {
	if cfg.Epochs <= 0 {
		cfg.Epochs = 50000
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 5e-9
	}
	if cfg.Beta == 0 {
		cfg.Beta = 1e-5
	}
	if cfg.Patience <= 0 {
		cfg.Patience = 500
	}
	if cfg.MinDelta == 0 {
		cfg.MinDelta = 1e-6
	}
	if cfg.LossThreshold == 0 {
		cfg.LossThreshold = 0.005
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 2
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = 5000
	}
	if cfg.LogFn == nil {
		cfg.LogFn = func(epoch int, loss float64, preds []float64) {
			log.Printf("epoch %5d  loss=%.6f  preds=%+.3f", epoch, loss, preds)
		}
	}
	return cfg
}

// Result 训练结果。
type Result struct {
	Weights     []float64 // 最终电阻，全部落在[RMin, RMax]内
	State       State     // 终止状态
	Epochs      int       // 实际执行的epoch数
	FinalLoss   float64   // 最后一个epoch的总损失
	BestLoss    float64   // 观察到的最优epoch损失
	BestEpoch   int       // 最优损失所在epoch
	History     []float64 // 每epoch总损失
	Predictions []float64 // 最后一次评估的各样本预测（该epoch被跳过的样本为NaN）
}

// Train 平衡传播训练循环
// 逐epoch遍历数据集，经梯度引擎取得每样本电导空间梯度，
// 在电导空间做有界梯度下降（截断进电位器物理行程后换回电阻），
// 直到收敛、停滞、失败或耗尽。
// 参数:
//
//	net - 网络拓扑（只读）
//	dataset - 训练样本
//	cfg - 配置
//
// 返回:
//
//	训练结果；State=Failed时同时返回导致失败的错误
func Train(net *network.Network, dataset []Pattern, cfg Config) (*Result, error) {
	if len(dataset) == 0 {
		return nil, fmt.Errorf("数据集为空")
	}
	cfg = cfg.withDefaults()
	wp := net.Weights

	weights := cfg.InitialWeights
	if weights == nil {
		weights = wp.RandomWeights(net.NumWeights(), cfg.Seed)
	} else {
		weights = append([]float64(nil), weights...)
	}
	if len(weights) != net.NumWeights() {
		return nil, fmt.Errorf("初始权重数量 %d 与连接数 %d 不符", len(weights), net.NumWeights())
	}

	result := &Result{
		Weights:     weights,
		State:       Running,
		BestLoss:    math.Inf(1),
		Predictions: make([]float64, len(dataset)),
	}
	// 每样本自由相解缓存: 跨epoch热启动，也是重试扰动的基点
	freeCache := make([][]float64, len(dataset))
	gradAcc := make([]float64, net.NumWeights())
	stall := 0
	var lastErr error

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		epochLoss := 0.0
		usable := 0
		for i := range gradAcc {
			gradAcc[i] = 0
		}

		results, errs := epochGradients(net, dataset, weights, freeCache, epoch, cfg)
		for i, p := range dataset {
			if errs[i] != nil {
				// 重试预算耗尽: 跳过该样本并记录警告，不中止整轮训练
				log.Printf("警告: epoch %d 样本 %s 求解失败（已重试 %d 次），跳过: %v",
					epoch, p.Label, cfg.Retries, errs[i])
				lastErr = errs[i]
				result.Predictions[i] = math.NaN()
				continue
			}
			g := results[i]
			if g.BranchEscape {
				log.Printf("警告: epoch %d 样本 %s 推动相偏离自由相 %.3fV，疑似落入其它平衡分支",
					epoch, p.Label, g.BranchDistance)
			}
			usable++
			epochLoss += g.Loss
			result.Predictions[i] = g.Prediction
			freeCache[i] = g.Free
			if cfg.Online {
				applyUpdate(wp, weights, g.Gradient, cfg.LearningRate)
			} else {
				for w := range gradAcc {
					gradAcc[w] += g.Gradient[w]
				}
			}
		}

		if usable == 0 {
			// 整个epoch没有可用样本，终止（失败的epoch也计入）
			result.State = Failed
			result.Epochs = epoch + 1
			result.FinalLoss = epochLoss
			return result, fmt.Errorf("epoch %d 所有样本求解失败: %w", epoch, lastErr)
		}
		if !cfg.Online {
			applyUpdate(wp, weights, gradAcc, cfg.LearningRate)
		}

		result.History = append(result.History, epochLoss)
		result.FinalLoss = epochLoss

		// 停滞检测
		if epochLoss < result.BestLoss-cfg.MinDelta {
			result.BestLoss = epochLoss
			result.BestEpoch = epoch
			stall = 0
		} else {
			stall++
		}

		final := false
		switch {
		case epochLoss < cfg.LossThreshold:
			result.State = Converged
			final = true
		case stall >= cfg.Patience:
			result.State = Plateaued
			final = true
		}
		if final || epoch%cfg.LogInterval == 0 || epoch == cfg.Epochs-1 {
			cfg.LogFn(epoch, epochLoss, result.Predictions)
		}
		if final {
			result.Epochs = epoch + 1
			return result, nil
		}
	}

	result.State = Exhausted
	result.Epochs = cfg.Epochs
	return result, nil
}

// epochGradients 求一个epoch内全部样本的梯度（带重试），
// Parallel开启且整批模式时并行评估后对失败样本串行重试。
func epochGradients(net *network.Network, dataset []Pattern, weights []float64,
	freeCache [][]float64, epoch int, cfg Config) ([]*GradientResult, []error) {

	results := make([]*GradientResult, len(dataset))
	errs := make([]error, len(dataset))

	if cfg.Parallel && !cfg.Online {
		results, errs = BatchGradients(net, dataset, weights, cfg.Beta, batchOptions(freeCache, epoch, len(dataset), cfg))
	} else {
		for i, p := range dataset {
			opt := patternOptions(freeCache[i], epoch, i, cfg)
			results[i], errs[i] = Gradient(net, p.Inputs, weights, p.Target, cfg.Beta, opt)
		}
	}

	// 失败样本重试: 扰动热启动初值后重解
	for i, p := range dataset {
		if errs[i] == nil {
			continue
		}
		rng := rand.New(rand.NewSource(cfg.Seed + int64(epoch)*1000 + int64(i)))
		for attempt := 1; attempt <= cfg.Retries && errs[i] != nil; attempt++ {
			opt := patternOptions(nil, epoch, i, cfg)
			opt.FreeGuess = retryGuess(rng, freeCache[i], p.Inputs, net.NumFree)
			results[i], errs[i] = Gradient(net, p.Inputs, weights, p.Target, cfg.Beta, opt)
		}
	}
	return results, errs
}

// patternOptions 单样本的梯度选项。
// 单侧模式的奇偶取 epoch+i: 每个样本的β符号在相邻epoch间交替。
// 全局步计数 epoch*n+i 在偶数规模数据集下每个样本的奇偶恒定，
// 单侧推动的一阶偏差会累积成系统性偏置而不是跨epoch抵消。
func patternOptions(free []float64, epoch, i int, cfg Config) *Options {
	return &Options{
		OneSided:    cfg.OneSided,
		Parity:      epoch + i,
		BranchLimit: cfg.BranchLimit,
		FreeGuess:   free,
	}
}

// batchOptions 整批并行评估的每样本选项。
func batchOptions(freeCache [][]float64, epoch, n int, cfg Config) []*Options {
	opts := make([]*Options, n)
	for i := range opts {
		opts[i] = patternOptions(freeCache[i], epoch, i, cfg)
	}
	return opts
}

// applyUpdate 电导空间有界梯度下降。
// G_new = clamp(G_old - lr*grad)，截断模拟电位器的物理行程，
// 防止发散到负电阻或无穷电阻。
func applyUpdate(wp network.WeightParams, weights, grad []float64, lr float64) {
	for i := range weights {
		g := 1.0 / weights[i]
		g = wp.ClampConductance(g - lr*grad[i])
		weights[i] = 1.0 / g
	}
}

// perturb 就地±50mV均匀扰动。
func perturb(rng *rand.Rand, v []float64) {
	for i := range v {
		v[i] += (rng.Float64() - 0.5) * 0.1
	}
}

// retryGuess 重试初值: 有缓存则扰动缓存，否则在输入电压范围内随机。
func retryGuess(rng *rand.Rand, cached, inputs []float64, numFree int) []float64 {
	guess := make([]float64, numFree)
	if cached != nil {
		copy(guess, cached)
		perturb(rng, guess)
		return guess
	}
	lo, hi := inputs[0], inputs[0]
	for _, v := range inputs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	for i := range guess {
		guess[i] = lo + rng.Float64()*(hi-lo)
	}
	return guess
}
