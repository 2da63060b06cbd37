// 训练XOR模拟电路并验证结果的命令行入口。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/emersonmde/eqprop"
	"github.com/emersonmde/eqprop/training"
	"github.com/emersonmde/eqprop/xor"
)

func main() {
	var (
		epochs   = flag.Int("epochs", 50000, "最大epoch数")
		lr       = flag.Float64("lr", 5e-9, "电导空间学习率")
		beta     = flag.Float64("beta", 1e-5, "推动强度")
		seed     = flag.Int64("seed", 42, "随机种子")
		patience = flag.Int("patience", 500, "停滞容忍epoch数")
		parallel = flag.Bool("parallel", false, "并行评估整批梯度")
		online   = flag.Bool("online", false, "逐样本更新")
		oneSided = flag.Bool("one-sided", false, "单侧推动（β符号交替）")
		runSpice = flag.Bool("spice", false, "训练后用ngspice交叉验证")
		pngPath  = flag.String("png", "", "损失曲线PNG输出路径")
		httpAddr = flag.String("http", "", "训练后在该地址发布仪表盘（如 :8080）")
	)
	flag.Parse()

	net := xor.New()
	dataset := xor.Dataset()
	exp := eqprop.NewExperiment(net, dataset, training.Config{
		Epochs:       *epochs,
		LearningRate: *lr,
		Beta:         *beta,
		Seed:         *seed,
		Patience:     *patience,
		Parallel:     *parallel,
		Online:       *online,
		OneSided:     *oneSided,
	})

	res, err := exp.Train()
	if err != nil {
		log.Fatalf("训练失败: %v", err)
	}
	fmt.Printf("终止状态: %s（%d epoch，最终损失 %.6f，最优 %.6f @ epoch %d）\n",
		res.State, res.Epochs, res.FinalLoss, res.BestLoss, res.BestEpoch)

	ok, err := xor.Verify(net, res.Weights, 0.15, os.Stdout)
	if err != nil {
		log.Fatalf("验证失败: %v", err)
	}

	if *runSpice {
		report, err := exp.CrossValidate(context.Background(), res.Weights, 1.0)
		if err != nil {
			log.Fatalf("SPICE交叉验证失败: %v", err)
		}
		for _, pr := range report.Patterns {
			for _, nc := range pr.Nodes {
				fmt.Printf("  %s %s: 求解器 %.5fV vs SPICE %.5fV (%.3f%%)\n",
					pr.Label, nc.Name, nc.Solver, nc.Spice, nc.ErrPct)
			}
		}
		if !report.Pass {
			log.Fatal("SPICE交叉验证超出容差")
		}
		fmt.Println("SPICE交叉验证通过")
	}

	if *pngPath != "" {
		if err := exp.Record.SaveLossPNG(*pngPath); err != nil {
			log.Fatalf("PNG输出失败: %v", err)
		}
		fmt.Printf("损失曲线已写入 %s\n", *pngPath)
	}

	if *httpAddr != "" {
		http.HandleFunc("/", exp.Handler)
		fmt.Printf("仪表盘: http://localhost%s/\n", *httpAddr)
		log.Fatal(http.ListenAndServe(*httpAddr, nil))
	}

	if !ok {
		os.Exit(1)
	}
}
