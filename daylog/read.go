package daylog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadFile returns the readings stored in a daily log file, in file order.
// Only the first comma-separated field of each row is read, so files with
// extra columns load as well. Blank rows are skipped.
func ReadFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []int64
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		field, _, _ := strings.Cut(strings.TrimSpace(sc.Text()), ",")
		if field == "" {
			continue
		}
		v, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}
