package hardware

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Master 文本协议
//
// 设置指令: Gid,Mode,Bri,BPM,Color,Speed,Spread,Duty,P1,P2,P3,P4\n
// 停止指令: STOP\n
// Master 回传以 \r\n 分行，只记录不解析
const (
	StopCommand = "STOP\n"

	// DefaultPaletteColor 色盘不足 4 色时的补齐值
	DefaultPaletteColor = "000000"

	// PaletteSize 色盘固定颜色数
	PaletteSize = 4

	// CommandFieldCount 设置指令的字段数
	CommandFieldCount = 12

	commandTerminator = "\n"
	fieldSeparator    = ","
)

// Scalar 原样转发的指令字段
//
// JSON 数字保留原始文本，字符串去掉引号，null 输出为空。
// Falsy 表示该值为空值（null、false、""、0），
// 色盘补齐依赖它。
type Scalar struct {
	Text  string
	Falsy bool
}

// Text 由字符串构造字段
func Text(s string) Scalar {
	return Scalar{Text: s, Falsy: s == ""}
}

// Int 由整数构造字段
func Int(n int) Scalar {
	return Scalar{Text: strconv.Itoa(n), Falsy: n == 0}
}

// UnmarshalJSON 实现 json.Unmarshaler
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = Scalar{Falsy: true}
	case data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar{Text: str, Falsy: str == ""}
	case data[0] == '{' || data[0] == '[':
		// 对象和数组按紧凑 JSON 文本转发
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*s = Scalar{Text: buf.String()}
	case bytes.Equal(data, []byte("false")):
		*s = Scalar{Text: "false", Falsy: true}
	default:
		text := string(data)
		falsy := false
		if f, err := strconv.ParseFloat(text, 64); err == nil && f == 0 {
			falsy = true
		}
		*s = Scalar{Text: text, Falsy: falsy}
	}
	return nil
}

// MarshalJSON 实现 json.Marshaler
func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Text)
}

// String 返回字段文本
func (s Scalar) String() string {
	return s.Text
}

// Command 一条设置指令
type Command struct {
	GID     Scalar   `json:"gid"`
	Mode    Scalar   `json:"mode"`
	Bri     Scalar   `json:"bri"`
	BPM     Scalar   `json:"bpm"`
	Color   Scalar   `json:"color"`
	Speed   Scalar   `json:"speed"`
	Spread  Scalar   `json:"spread"`
	Duty    Scalar   `json:"duty"`
	Palette []Scalar `json:"pal"`
}

// PaletteColors 返回补齐后的 4 个色盘颜色
// 缺失或为假值的条目以 000000 代替，多余条目忽略
func (c *Command) PaletteColors() [PaletteSize]string {
	var colors [PaletteSize]string
	for i := range colors {
		colors[i] = DefaultPaletteColor
		if i < len(c.Palette) && !c.Palette[i].Falsy {
			colors[i] = c.Palette[i].Text
		}
	}
	return colors
}

// FormatCommand 生成写入 Master 的指令行（含结尾换行）
func FormatCommand(c *Command) string {
	palette := c.PaletteColors()

	fields := make([]string, 0, CommandFieldCount)
	fields = append(fields,
		c.GID.Text,
		c.Mode.Text,
		c.Bri.Text,
		c.BPM.Text,
		c.Color.Text,
		c.Speed.Text,
		c.Spread.Text,
		c.Duty.Text,
	)
	fields = append(fields, palette[:]...)

	return strings.Join(fields, fieldSeparator) + commandTerminator
}

// ParseBaudRate 解析波特率
// 取开头的十进制整数部分，无法解析或不为正数时返回 fallback
func ParseBaudRate(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	end := 0
	if end < len(raw) && (raw[end] == '+' || raw[end] == '-') {
		end++
	}
	digits := end
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == digits {
		return fallback
	}

	n, err := strconv.Atoi(raw[:end])
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
