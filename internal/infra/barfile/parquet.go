package barfile

import (
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// ReadParquet loads every record of a parquet bar file.
func ReadParquet(path string) ([]Record, error) {
	rows, err := parquet.ReadFile[Record](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}

// WriteParquet stores records as a parquet file.
func WriteParquet(path string, records []Record) error {
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}
