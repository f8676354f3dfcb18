package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/wfunc/led-master/internal/config"
	"github.com/wfunc/led-master/internal/hardware"
	"github.com/wfunc/led-master/internal/logger"
)

// ledctl 直接通过串口调试 Master，不经过 HTTP 服务
func main() {
	var (
		list     = flag.Bool("list", false, "列出可用串口后退出")
		path     = flag.String("port", "", "串口路径，如 /dev/ttyUSB0")
		baudRate = flag.String("baud", "", "波特率，缺省 115200")
		level    = flag.String("log-level", "warn", "日志级别")
	)
	flag.Parse()

	if err := logger.Init(&config.LogConfig{Level: *level, Format: "console", Output: "stdout"}); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	err := run(*list, *path, *baudRate)
	logger.Cleanup()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(list bool, path, baudRate string) error {
	manager := hardware.NewManager(hardware.DefaultManagerConfig())

	if list || path == "" {
		ports, err := manager.ListPorts()
		if err != nil {
			return fmt.Errorf("列举串口失败: %w", err)
		}
		if len(ports) == 0 {
			fmt.Println("未发现串口")
		}
		for _, p := range ports {
			if p.IsUSB {
				fmt.Printf("%s\tUSB %s:%s %s\n", p.Path, p.VendorID, p.ProductID, p.Product)
			} else {
				fmt.Println(p.Path)
			}
		}
		if path == "" {
			return nil
		}
	}

	baud := hardware.ParseBaudRate(baudRate, manager.DefaultBaudRate())
	manager.OnTraffic(func(e hardware.TrafficEvent) {
		if e.Direction == hardware.DirectionReceive {
			fmt.Printf("\n< %s\n> ", e.Line)
		}
	})

	if err := manager.Open(path, baud); err != nil {
		return fmt.Errorf("无法打开串口: %w", err)
	}

	fmt.Printf("串口已打开: %s @ %d\n", path, baud)
	fmt.Println(`输入 JSON 指令发送，如 {"gid":1,"mode":2,"bri":128,"bpm":120,"color":"FF0000","speed":5,"spread":3,"duty":50,"pal":["00FF00"]}`)
	fmt.Println("输入 'status' 查看状态，'quit' 发送 STOP 并退出")
	fmt.Println("----------------------------------------")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "quit", "stop":
			return disconnect(manager)
		case "status":
			data, _ := json.MarshalIndent(manager.Status(), "", "  ")
			fmt.Println(string(data))
			continue
		}

		var cmd hardware.Command
		if err := json.Unmarshal([]byte(input), &cmd); err != nil {
			fmt.Printf("指令格式错误: %v\n", err)
			continue
		}
		line, err := manager.Send(&cmd, "")
		if err != nil {
			fmt.Printf("发送失败: %v\n", err)
			continue
		}
		fmt.Printf("已发送: %s", line)
	}

	return disconnect(manager)
}

// disconnect 发送 STOP 后断线
func disconnect(manager *hardware.Manager) error {
	closed, err := manager.Close()
	if err != nil {
		return fmt.Errorf("断线失败: %w", err)
	}
	if closed {
		fmt.Println("Master 已停止广播并断线")
	}
	return nil
}
