package toolbox

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
)

const safeTensorsMetadataKey = "__metadata__"

// Header lengths beyond this are treated as corruption rather than allocated.
const maxSafeTensorsHeaderLen = 100 << 20

type SafeTensorInfo struct {
	DType       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets []int  `json:"data_offsets"`
}

// WriteSafeTensors writes tensors in the safetensors format: an 8-byte
// little-endian header length, a JSON header, then the raw little-endian
// float32 data of each tensor in key order.
func WriteSafeTensors(w io.Writer, tensors map[string]*AF32, metadata map[string]string) error {
	header := map[string]any{}
	dataOffset := 0

	keys := []string{}
	for k := range tensors {
		if k == safeTensorsMetadataKey {
			return fmt.Errorf("tensor name %q is reserved", k)
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		begin := dataOffset
		dataOffset += len(tensors[k].V) * 4
		end := dataOffset

		header[k] = SafeTensorInfo{
			DType:       "F32",
			Shape:       tensors[k].Shape,
			DataOffsets: []int{begin, end},
		}
	}
	if len(metadata) > 0 {
		header[safeTensorsMetadataKey] = metadata
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("while marshaling header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		return fmt.Errorf("while writing header length: %w", err)
	}

	if _, err := w.Write(headerBytes); err != nil {
		return fmt.Errorf("while writing header: %w", err)
	}

	for _, k := range keys {
		if err := binary.Write(w, binary.LittleEndian, tensors[k].V); err != nil {
			return fmt.Errorf("while writing %s values: %w", k, err)
		}
	}

	return nil
}

// ReadSafeTensors reads a file written by WriteSafeTensors.  Any structural
// problem is reported as ErrCorrupt.
func ReadSafeTensors(r io.Reader) (map[string]*AF32, map[string]string, error) {
	var headerLen uint64
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, nil, fmt.Errorf("%w: while reading header length: %v", ErrCorrupt, err)
	}
	if headerLen > maxSafeTensorsHeaderLen {
		return nil, nil, fmt.Errorf("%w: header length %d too large", ErrCorrupt, headerLen)
	}

	headerBytes := make([]byte, int(headerLen))
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, nil, fmt.Errorf("%w: while reading header: %v", ErrCorrupt, err)
	}

	rawHeader := map[string]json.RawMessage{}
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, nil, fmt.Errorf("%w: while parsing header: %v", ErrCorrupt, err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("while reading tensor data: %w", err)
	}

	metadata := map[string]string{}
	tensors := map[string]*AF32{}
	for k, raw := range rawHeader {
		if k == safeTensorsMetadataKey {
			if err := json.Unmarshal(raw, &metadata); err != nil {
				return nil, nil, fmt.Errorf("%w: while parsing metadata: %v", ErrCorrupt, err)
			}
			continue
		}

		var hdr SafeTensorInfo
		if err := json.Unmarshal(raw, &hdr); err != nil {
			return nil, nil, fmt.Errorf("%w: while parsing header for %s: %v", ErrCorrupt, k, err)
		}
		if hdr.DType != "F32" {
			return nil, nil, fmt.Errorf("%w: unsupported dtype %s for %s", ErrCorrupt, hdr.DType, k)
		}
		if len(hdr.Shape) == 0 || len(hdr.Shape) > 3 {
			return nil, nil, fmt.Errorf("%w: unsupported shape %v for %s", ErrCorrupt, hdr.Shape, k)
		}

		// Every dimension is bounded by what the data section can hold, so
		// the running product never overflows.
		maxValues := len(data) / 4
		size := 1
		for _, s := range hdr.Shape {
			if s < 1 || s > maxValues/size {
				return nil, nil, fmt.Errorf("%w: bad shape %v for %s", ErrCorrupt, hdr.Shape, k)
			}
			size *= s
		}

		if len(hdr.DataOffsets) != 2 {
			return nil, nil, fmt.Errorf("%w: bad data offsets %v for %s", ErrCorrupt, hdr.DataOffsets, k)
		}
		begin, end := hdr.DataOffsets[0], hdr.DataOffsets[1]
		if begin < 0 || end > len(data) || end-begin != size*4 {
			return nil, nil, fmt.Errorf("%w: data offsets %v for %s do not fit shape %v in %d bytes", ErrCorrupt, hdr.DataOffsets, k, hdr.Shape, len(data))
		}

		tensors[k] = &AF32{
			V:     decodeF32(data[begin:end]),
			Shape: hdr.Shape,
		}
	}

	return tensors, metadata, nil
}

func decodeF32(b []byte) []float32 {
	f := make([]float32, len(b)/4)
	for i := range f {
		f[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return f
}
