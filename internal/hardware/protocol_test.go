package hardware

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeCommand(t *testing.T, body string) *Command {
	t.Helper()
	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(body), &cmd))
	return &cmd
}

func TestFormatCommandExample(t *testing.T) {
	cmd := decodeCommand(t, `{"gid":1,"mode":2,"bri":128,"bpm":120,"color":"FF0000","speed":5,"spread":3,"duty":50,"pal":["00FF00","0000FF"]}`)

	assert.Equal(t, "1,2,128,120,FF0000,5,3,50,00FF00,0000FF,000000,000000\n", FormatCommand(cmd))
}

func TestFormatCommandPaletteDefaults(t *testing.T) {
	tests := []struct {
		name string
		pal  string
		want string
	}{
		{"空色盘", `[]`, "000000,000000,000000,000000"},
		{"缺少色盘", ``, "000000,000000,000000,000000"},
		{"色盘为null", `null`, "000000,000000,000000,000000"},
		{"单色", `["FF0000"]`, "FF0000,000000,000000,000000"},
		{"四色", `["111111","222222","333333","444444"]`, "111111,222222,333333,444444"},
		{"多于四色", `["111111","222222","333333","444444","555555"]`, "111111,222222,333333,444444"},
		{"空字符串视为缺失", `["","ABCDEF"]`, "000000,ABCDEF,000000,000000"},
		{"null条目视为缺失", `[null,"ABCDEF",0,false]`, "000000,ABCDEF,000000,000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"gid":1,"mode":0,"bri":255,"bpm":60,"color":"FFFFFF","speed":1,"spread":1,"duty":10`
			if tt.pal != "" {
				body += `,"pal":` + tt.pal
			}
			body += `}`

			line := FormatCommand(decodeCommand(t, body))
			require.True(t, strings.HasSuffix(line, "\n"))
			fields := strings.Split(strings.TrimSuffix(line, "\n"), ",")
			require.Len(t, fields, CommandFieldCount)
			assert.Equal(t, tt.want, strings.Join(fields[8:], ","))
		})
	}
}

func TestFormatCommandFieldCount(t *testing.T) {
	// 无论提供多少字段，指令行始终为 12 个字段并以单个换行结尾
	bodies := []string{
		`{}`,
		`{"gid":1}`,
		`{"gid":"3","mode":"7","bri":0,"bpm":null,"pal":["A"]}`,
		`{"gid":1,"mode":2,"bri":3,"bpm":4,"color":"5","speed":6,"spread":7,"duty":8,"pal":["1","2","3","4","5","6"]}`,
	}
	for _, body := range bodies {
		line := FormatCommand(decodeCommand(t, body))
		assert.Equal(t, 1, strings.Count(line, "\n"), body)
		assert.True(t, strings.HasSuffix(line, "\n"), body)
		assert.Len(t, strings.Split(strings.TrimSuffix(line, "\n"), ","), CommandFieldCount, body)
	}
}

func TestFormatCommandEchoesValues(t *testing.T) {
	// 标量原样转发：数字保留原文，字符串去引号，null/缺失为空
	cmd := decodeCommand(t, `{"gid":"07","mode":2.5,"bri":0,"bpm":null,"color":"ff00aa","speed":true,"spread":-1,"pal":["FF0000"]}`)
	assert.Equal(t, "07,2.5,0,,ff00aa,true,-1,,FF0000,000000,000000,000000\n", FormatCommand(cmd))
}

func TestCommandFromGoValues(t *testing.T) {
	cmd := &Command{
		GID:     Int(1),
		Mode:    Int(2),
		Bri:     Int(128),
		BPM:     Int(120),
		Color:   Text("FF0000"),
		Speed:   Int(5),
		Spread:  Int(3),
		Duty:    Int(50),
		Palette: []Scalar{Text("00FF00"), Text("")},
	}
	assert.Equal(t, "1,2,128,120,FF0000,5,3,50,00FF00,000000,000000,000000\n", FormatCommand(cmd))
}

func TestScalarUnmarshal(t *testing.T) {
	tests := []struct {
		in    string
		text  string
		falsy bool
	}{
		{`1`, "1", false},
		{`0`, "0", true},
		{`0.0`, "0.0", true},
		{`"abc"`, "abc", false},
		{`""`, "", true},
		{`null`, "", true},
		{`false`, "false", true},
		{`true`, "true", false},
		{`[1, 2]`, "[1,2]", false},
	}
	for _, tt := range tests {
		var s Scalar
		require.NoError(t, json.Unmarshal([]byte(tt.in), &s), tt.in)
		assert.Equal(t, tt.text, s.Text, tt.in)
		assert.Equal(t, tt.falsy, s.Falsy, tt.in)
	}
}

func TestScalarMarshal(t *testing.T) {
	data, err := json.Marshal(Int(42))
	require.NoError(t, err)
	assert.Equal(t, `"42"`, string(data))
}

func TestParseBaudRate(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"9600", 9600},
		{" 57600 ", 57600},
		{"9600abc", 9600},
		{"19200.7", 19200},
		{"", 115200},
		{"abc", 115200},
		{"0", 115200},
		{"-9600", 115200},
		{"+38400", 38400},
		{"99999999999999999999", 115200},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBaudRate(tt.in, 115200), tt.in)
	}
}

func TestFormatCommandDoesNotEscapeSeparators(t *testing.T) {
	// 字段不做校验与转义，含逗号或换行的值会原样写入
	cmd := decodeCommand(t, `{"gid":[1,2],"mode":2,"bri":128,"bpm":120,"color":"FF,00","speed":5,"spread":3,"duty":50}`)
	line := FormatCommand(cmd)
	assert.Equal(t, "[1,2],2,128,120,FF,00,5,3,50,000000,000000,000000,000000\n", line)
	assert.Len(t, strings.Split(strings.TrimSuffix(line, "\n"), ","), CommandFieldCount+2)

	cmd = decodeCommand(t, `{"gid":1,"color":"FF0000\nSTOP"}`)
	line = FormatCommand(cmd)
	assert.Equal(t, "1,,,,FF0000\nSTOP,,,,000000,000000,000000,000000\n", line)
	assert.Equal(t, 2, strings.Count(line, "\n"))
}
