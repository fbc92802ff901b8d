package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadError 数据集加载失败
type LoadError struct {
	Path    string
	Message string
	Cause   error
}

// Error 实现error接口
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load %s: %s", e.Path, e.Message)
}

// Unwrap 返回原因错误
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Row 数据集中的一行，Index 在加载时分配且整个运行期间保持不变
type Row struct {
	Index  int
	Fields []string
}

// Dataset 按原始位置索引的有序行集合
type Dataset struct {
	Header  []string
	Rows    []Row
	textIdx int
}

// New 从内存中的记录构建数据集，索引按位置分配
func New(header []string, textColumn string, records [][]string) (*Dataset, error) {
	textIdx := -1
	for i, col := range header {
		if col == textColumn {
			textIdx = i
			break
		}
	}
	if textIdx < 0 {
		return nil, fmt.Errorf("required column %q not found in header", textColumn)
	}

	ds := &Dataset{Header: header, textIdx: textIdx}
	for _, record := range records {
		ds.Rows = append(ds.Rows, Row{Index: len(ds.Rows), Fields: record})
	}
	return ds, nil
}

// LoadOptions 加载选项
type LoadOptions struct {
	TextColumn string   // 必须存在的文本列名
	Encodings  []string // 编码候选，按顺序尝试
	Logger     *zap.Logger
}

// Load 从 CSV 文件加载数据集
// 依次尝试每个候选编码，结构异常的行被丢弃而不是让整个加载失败
func Load(path string, opts LoadOptions) (*Dataset, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TextColumn == "" {
		opts.TextColumn = "text"
	}
	if len(opts.Encodings) == 0 {
		opts.Encodings = []string{"utf-8", "gb18030", "latin-1"}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "cannot read file", Cause: err}
	}

	var decodeErr error
	for _, name := range opts.Encodings {
		text, err := decode(raw, name)
		if err != nil {
			opts.Logger.Debug("encoding candidate failed",
				zap.String("encoding", name),
				zap.Error(err))
			decodeErr = err
			continue
		}

		ds, err := parse(text, opts)
		if err != nil {
			return nil, &LoadError{Path: path, Message: err.Error()}
		}

		opts.Logger.Info("dataset loaded",
			zap.String("file", path),
			zap.String("encoding", name),
			zap.Int("rows", ds.Len()))
		return ds, nil
	}

	return nil, &LoadError{Path: path, Message: "no supported encoding could decode the file", Cause: decodeErr}
}

// decode 按指定编码解码原始字节
func decode(raw []byte, name string) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	var dec *encoding.Decoder
	switch strings.ToLower(name) {
	case "utf-8", "utf8":
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("input is not valid UTF-8")
		}
		return string(raw), nil
	case "gb18030":
		dec = simplifiedchinese.GB18030.NewDecoder()
	case "gbk":
		dec = simplifiedchinese.GBK.NewDecoder()
	case "latin-1", "latin1", "iso-8859-1":
		dec = charmap.ISO8859_1.NewDecoder()
	default:
		return "", fmt.Errorf("unsupported encoding %q", name)
	}

	out, err := dec.Bytes(raw)
	if err != nil {
		return "", err
	}
	// 传统编码的解码器用替换字符兜底而不报错，出现替换字符说明猜错了编码
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("input contains byte sequences invalid for %s", name)
	}
	return string(out), nil
}

// parse 解析解码后的 CSV 文本
func parse(text string, opts LoadOptions) (*Dataset, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read header row: %v", err)
	}

	textIdx := -1
	for i, col := range header {
		if col == opts.TextColumn {
			textIdx = i
			break
		}
	}
	if textIdx < 0 {
		return nil, fmt.Errorf("required column %q not found in header", opts.TextColumn)
	}

	ds := &Dataset{Header: header, textIdx: textIdx}
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			// 丢弃无法解析的行
			opts.Logger.Debug("discarding malformed row", zap.Int("line", line), zap.Error(err))
			continue
		}
		if len(record) != len(header) {
			opts.Logger.Debug("discarding row with wrong field count",
				zap.Int("line", line),
				zap.Int("fields", len(record)),
				zap.Int("expected", len(header)))
			continue
		}
		ds.Rows = append(ds.Rows, Row{Index: len(ds.Rows), Fields: record})
	}

	return ds, nil
}

// Len 返回数据集的行数
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Text 返回指定行的文本值，缺失的字段视作空字符串
func (d *Dataset) Text(index int) string {
	if index < 0 || index >= len(d.Rows) {
		return ""
	}
	fields := d.Rows[index].Fields
	if d.textIdx >= len(fields) {
		return ""
	}
	return fields[d.textIdx]
}

// SetText 覆写指定行的文本值
func (d *Dataset) SetText(index int, text string) {
	if index < 0 || index >= len(d.Rows) {
		return
	}
	fields := d.Rows[index].Fields
	for d.textIdx >= len(fields) {
		fields = append(fields, "")
	}
	fields[d.textIdx] = text
	d.Rows[index].Fields = fields
}

// ApplyCheckpoint 按索引将检查点中的文本值覆盖到数据集上
// 检查点可能只覆盖数据集的一个子集，未覆盖的行保持加载时的值
func (d *Dataset) ApplyCheckpoint(values map[int]string) {
	for index, text := range values {
		if index < 0 || index >= len(d.Rows) {
			continue
		}
		d.SetText(index, text)
	}
}

// BatchRange 返回从 start 开始、大小为 size 的批次区间 [lo, hi)，按数据集长度截断
func (d *Dataset) BatchRange(start, size int) (int, int) {
	hi := start + size
	if hi > len(d.Rows) {
		hi = len(d.Rows)
	}
	return start, hi
}
