package hardware

import (
	"io"
	"time"

	"github.com/tarm/serial"
	"go.bug.st/serial/enumerator"
)

// SerialPort 串口接口（用于测试）
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// PortOpener 打开串口
type PortOpener func(path string, baudRate int, readTimeout time.Duration) (SerialPort, error)

// PortLister 列举系统串口
type PortLister func() ([]PortInfo, error)

// OpenSerialPort 使用 tarm/serial 打开串口（8N1）
func OpenSerialPort(path string, baudRate int, readTimeout time.Duration) (SerialPort, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        baudRate,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// ListSystemPorts 列举系统中可用的串口
func ListSystemPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Path:         d.Name,
			IsUSB:        d.IsUSB,
			VendorID:     d.VID,
			ProductID:    d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}
