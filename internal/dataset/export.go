package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
)

// Export 将完整的数据集写入输出文件
// 输出为带 BOM 的 UTF-8，保证中文内容在表格软件中正确打开；不写行索引列
func (d *Dataset) Export(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(d.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range d.Rows {
		if err := cw.Write(row.Fields); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row.Index, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	return f.Sync()
}
