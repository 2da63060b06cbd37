package spice

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout ngspice批处理超时。
const DefaultTimeout = 30 * time.Second

// Available 检查ngspice是否在PATH中。
func Available() bool {
	_, err := exec.LookPath("ngspice")
	return err == nil
}

// Run 在临时目录中批处理运行ngspice并解析.raw输出
// 参数:
//
//	ctx - 超时/取消控制
//	netlist - 网表文本
//
// 返回:
//
//	变量名（小写，如 "v(h1)"）到工作点值的映射
func Run(ctx context.Context, netlist string) (map[string]float64, error) {
	dir, err := os.MkdirTemp("", "eqprop-spice-*")
	if err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer os.RemoveAll(dir)

	cirPath := filepath.Join(dir, "circuit.cir")
	rawPath := filepath.Join(dir, "output.raw")
	logPath := filepath.Join(dir, "ngspice.log")
	if err := os.WriteFile(cirPath, []byte(netlist), 0o644); err != nil {
		return nil, fmt.Errorf("写入网表失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "ngspice", "-b", "-r", rawPath, "-o", logPath, cirPath)
	if err := cmd.Run(); err != nil {
		logTail, _ := os.ReadFile(logPath)
		return nil, fmt.Errorf("ngspice运行失败: %w\n%s", err, tail(logTail, 10))
	}

	data, err := os.ReadFile(rawPath)
	if err != nil {
		return nil, fmt.Errorf("读取.raw输出失败: %w", err)
	}
	return ParseRaw(data)
}

// ParseRaw 解析ngspice .raw工作点输出（二进制或ASCII格式）
// 只取第一个数据点，.op分析恰好产生一个点。
func ParseRaw(data []byte) (map[string]float64, error) {
	var names []string
	nVars := 0

	binMarker := []byte("Binary:\n")
	headerEnd := bytes.Index(data, binMarker)
	isBinary := headerEnd >= 0
	var header []byte
	if isBinary {
		header = data[:headerEnd]
	} else {
		header = data
	}

	sc := bufio.NewScanner(bytes.NewReader(header))
	inVars := false
	asciiVals := map[string]float64{}
	inValues := false
	valIdx := 0
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "No. Variables:"):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "No. Variables:")))
			if err != nil {
				return nil, fmt.Errorf("变量数解析失败: %w", err)
			}
			nVars = n
		case strings.HasPrefix(line, "Variables:"):
			inVars = true
		case strings.HasPrefix(line, "Values:"):
			inVars = false
			inValues = true
		case inVars:
			// 格式: "\t0\tv(h1)\tvoltage"
			fields := strings.Fields(line)
			if len(fields) >= 3 {
				names = append(names, strings.ToLower(fields[1]))
			}
		case inValues && valIdx < nVars:
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			// 数据点首行带点序号前缀
			s := fields[len(fields)-1]
			v, err := strconv.ParseFloat(strings.TrimSuffix(s, ","), 64)
			if err != nil {
				return nil, fmt.Errorf("数据值解析失败 %q: %w", s, err)
			}
			if valIdx < len(names) {
				asciiVals[names[valIdx]] = v
			}
			valIdx++
		}
	}
	if nVars == 0 || len(names) != nVars {
		return nil, fmt.Errorf(".raw头不完整: 声明%d个变量，实际%d个", nVars, len(names))
	}

	if !isBinary {
		if len(asciiVals) != nVars {
			return nil, fmt.Errorf(".raw数据点不完整: %d/%d", len(asciiVals), nVars)
		}
		return asciiVals, nil
	}

	payload := data[headerEnd+len(binMarker):]
	if len(payload) < nVars*8 {
		return nil, fmt.Errorf(".raw二进制数据过短: %d字节，需要%d", len(payload), nVars*8)
	}
	out := make(map[string]float64, nVars)
	for i, name := range names {
		bits := binary.LittleEndian.Uint64(payload[i*8 : i*8+8])
		out[name] = math.Float64frombits(bits)
	}
	return out, nil
}

// tail 日志末尾n行。
func tail(data []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
