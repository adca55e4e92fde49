package toolbox

import (
	"fmt"
	"os"
	"slices"
	"strconv"
)

const weightFileExt = ".dat"

func weightKey(l int) string {
	return fmt.Sprintf("weights.%d", l)
}

// DumpTensors adds the stack's matrices to tensors and returns the metadata
// needed to rebuild it.  The tensors share storage with the stack.
func (ws *WeightStack) DumpTensors(tensors map[string]*AF32) map[string]string {
	for l := 0; l < len(ws.Matrices); l++ {
		tensors[weightKey(l)] = ws.Matrices[l]
	}
	return map[string]string{
		"bias":   strconv.FormatBool(ws.Bias),
		"layers": strconv.Itoa(len(ws.Matrices)),
	}
}

// LoadWeightStack rebuilds a stack from tensors and metadata produced by
// DumpTensors.
func LoadWeightStack(tensors map[string]*AF32, metadata map[string]string) (*WeightStack, error) {
	bias, err := strconv.ParseBool(metadata["bias"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad bias metadata %q", ErrCorrupt, metadata["bias"])
	}
	layers, err := strconv.Atoi(metadata["layers"])
	if err != nil || layers < 1 {
		return nil, fmt.Errorf("%w: bad layers metadata %q", ErrCorrupt, metadata["layers"])
	}
	if len(tensors) != layers {
		return nil, fmt.Errorf("%w: metadata says %d layers but file holds %d tensors", ErrCorrupt, layers, len(tensors))
	}

	ws := &WeightStack{
		Matrices: make([]*AF32, layers),
		Bias:     bias,
	}
	for l := 0; l < layers; l++ {
		w, ok := tensors[weightKey(l)]
		if !ok {
			return nil, fmt.Errorf("%w: no entry for %s", ErrCorrupt, weightKey(l))
		}
		if len(w.Shape) != 2 {
			return nil, fmt.Errorf("%w: %s has shape %v, want 2 dimensions", ErrCorrupt, weightKey(l), w.Shape)
		}
		ws.Matrices[l] = &AF32{
			V:     w.V,
			Shape: slices.Clone(w.Shape),
		}
	}

	if err := ws.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return ws, nil
}

// Save writes the stack to the file <name>.dat, replacing any existing file.
func Save(ws *WeightStack, name string) error {
	if err := ws.Validate(); err != nil {
		return fmt.Errorf("while validating weight stack: %w", err)
	}

	f, err := os.Create(name + weightFileExt)
	if err != nil {
		return fmt.Errorf("while creating weight file: %w", err)
	}

	tensors := map[string]*AF32{}
	metadata := ws.DumpTensors(tensors)

	if err := WriteSafeTensors(f, tensors, metadata); err != nil {
		f.Close()
		return fmt.Errorf("while writing weight tensors: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("while closing weight file: %w", err)
	}
	return nil
}

// Load reads a stack previously written by Save from <name>.dat.  It returns a
// new stack; a missing file is reported as an error wrapping fs.ErrNotExist.
func Load(name string) (*WeightStack, error) {
	f, err := os.Open(name + weightFileExt)
	if err != nil {
		return nil, fmt.Errorf("while opening weight file: %w", err)
	}
	defer f.Close()

	tensors, metadata, err := ReadSafeTensors(f)
	if err != nil {
		return nil, fmt.Errorf("while reading weight tensors: %w", err)
	}

	ws, err := LoadWeightStack(tensors, metadata)
	if err != nil {
		return nil, fmt.Errorf("while restoring weight stack: %w", err)
	}
	return ws, nil
}
