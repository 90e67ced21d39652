package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorWarning = color.New(color.FgYellow).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
	colorFaint   = color.New(color.Faint).SprintFunc()
)

// Output 命令输出
type Output struct {
	w io.Writer
}

// NewOutput 创建输出；noColor 关闭全部颜色
func NewOutput(w io.Writer, noColor bool) *Output {
	if noColor {
		color.NoColor = true
	}
	return &Output{w: w}
}

// Success 成功消息
func (o *Output) Success(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorSuccess("✓"), fmt.Sprintf(format, args...))
}

// Error 错误消息
func (o *Output) Error(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorError("✗"), fmt.Sprintf(format, args...))
}

// Warning 警告消息
func (o *Output) Warning(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorWarning("!"), fmt.Sprintf(format, args...))
}

// Info 普通提示
func (o *Output) Info(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorInfo("i"), fmt.Sprintf(format, args...))
}

// Plain 无装饰输出
func (o *Output) Plain(format string, args ...interface{}) {
	fmt.Fprintf(o.w, format+"\n", args...)
}

// KeyValue 对齐的键值行
func (o *Output) KeyValue(key string, value interface{}) {
	fmt.Fprintf(o.w, "  %-12s %v\n", colorFaint(key+":"), value)
}

// Table 简单表格
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable 创建表格
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow 追加一行，超出表头的列被忽略
func (t *Table) AddRow(cols ...string) {
	for i, col := range cols {
		if i < len(t.widths) && len(col) > t.widths[i] {
			t.widths[i] = len(col)
		}
	}
	t.rows = append(t.rows, cols)
}

// Render 写出表格
func (t *Table) Render(o *Output) {
	// 颜色控制符不计入宽度，表头先补齐再上色
	for i, h := range t.headers {
		fmt.Fprintf(o.w, "%s  ", colorBold(pad(h, t.widths[i])))
	}
	fmt.Fprintln(o.w)
	for i := range t.headers {
		fmt.Fprintf(o.w, "%s  ", strings.Repeat("-", t.widths[i]))
	}
	fmt.Fprintln(o.w)
	for _, row := range t.rows {
		for i := range t.headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			fmt.Fprintf(o.w, "%s  ", pad(cell, t.widths[i]))
		}
		fmt.Fprintln(o.w)
	}
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// truncate 截断过长的单元格
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
