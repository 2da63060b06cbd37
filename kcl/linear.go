package kcl

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/emersonmde/eqprop/network"
)

// resistiveGuess 忽略二极管的线性预解，作为牛顿起点。
// 对每个自由节点求解纯电阻KCL。二极管电导在参考轨附近接近零，
// 从那里起步牛顿法会停滞或收敛到伪分支，线性解落在正确吸引域内。
// 参数:
//
//	net - 网络拓扑
//	fixed - 固定节点电压
//	weights - 连接电阻 (Ω)
//
// 返回:
//
//	自由节点电压向量
func resistiveGuess(net *network.Network, fixed, weights []float64) ([]float64, error) {
	nf := net.NumFree
	G := mat.NewDense(nf, nf, nil)
	b := mat.NewVecDense(nf, nil)

	for w, c := range net.Connections {
		g := 1.0 / weights[w]
		iFree, jFree := c[0]-net.NumFixed, c[1]-net.NumFixed

		switch {
		case iFree >= 0 && jFree >= 0:
			G.Set(iFree, iFree, G.At(iFree, iFree)+g)
			G.Set(jFree, jFree, G.At(jFree, jFree)+g)
			G.Set(iFree, jFree, G.At(iFree, jFree)-g)
			G.Set(jFree, iFree, G.At(jFree, iFree)-g)
		case iFree >= 0:
			G.Set(iFree, iFree, G.At(iFree, iFree)+g)
			b.SetVec(iFree, b.AtVec(iFree)+g*fixed[c[1]])
		case jFree >= 0:
			G.Set(jFree, jFree, G.At(jFree, jFree)+g)
			b.SetVec(jFree, b.AtVec(jFree)+g*fixed[c[0]])
		}
	}

	// 只靠二极管锚定的自由节点在纯电阻系统里悬空，
	// 补一个到参考轨的小电导保持矩阵非奇异，预解值即参考轨电压。
	const gAnchor = 1e-9
	for freeIdx, vRef := range net.DiodeNodes {
		G.Set(freeIdx, freeIdx, G.At(freeIdx, freeIdx)+gAnchor)
		b.SetVec(freeIdx, b.AtVec(freeIdx)+gAnchor*vRef)
	}

	var lu mat.LU
	lu.Factorize(G)
	x := mat.NewVecDense(nf, nil)
	if err := lu.SolveVecTo(x, false, b); err != nil {
		return nil, fmt.Errorf("线性预解失败（电导矩阵奇异）: %w", err)
	}

	guess := make([]float64, nf)
	for i := 0; i < nf; i++ {
		guess[i] = x.AtVec(i)
	}
	return guess, nil
}
