// Package feeder replays previously generated orders from newline-delimited
// JSON, so a run can submit a fixed, reproducible dataset instead of fresh
// random orders.
package feeder

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tradeengine/orderload/internal/order"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

// maxLine bounds a single NDJSON record.
const maxLine = 1 << 20

// ErrEmpty is returned when the input holds no orders.
var ErrEmpty = errors.New("feeder: no orders in input")

// Feeder holds a decoded dataset and hands orders out by index in
// round-robin order. It is immutable after construction, so At is safe for
// concurrent use.
type Feeder struct {
	orders []order.Order
}

// Open loads orders from path, or from stdin when path is "-".
func Open(path string, stdin io.Reader) (*Feeder, error) {
	if path == Stdin {
		f, err := Load(stdin)
		if err != nil {
			return nil, fmt.Errorf("read orders from stdin: %w", err)
		}
		return f, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open orders file: %w", err)
	}
	defer file.Close()

	f, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("read orders from %s: %w", path, err)
	}
	return f, nil
}

// Load decodes one order per line from r. Blank lines are skipped; every
// other line must be a valid order.
func Load(r io.Reader) (*Feeder, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var orders []order.Order
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var o order.Order
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("line %d: decode: %w", line, err)
		}
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		orders = append(orders, o)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if len(orders) == 0 {
		return nil, ErrEmpty
	}
	return &Feeder{orders: orders}, nil
}

// Len returns the number of orders in the dataset.
func (f *Feeder) Len() int {
	return len(f.orders)
}

// At returns the order for dispatch index i, wrapping around the dataset.
func (f *Feeder) At(i int) order.Order {
	if i < 0 {
		i = -i
	}
	return f.orders[i%len(f.orders)]
}
