package order

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// WriteNDJSON writes count generated orders to w, one JSON object per line.
func WriteNDJSON(w io.Writer, gen *Generator, count int) error {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	for i := 0; i < count; i++ {
		if err := enc.Encode(gen.Generate(i)); err != nil {
			return fmt.Errorf("encode order %d: %w", i, err)
		}
	}
	return buf.Flush()
}
