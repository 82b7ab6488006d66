package ultraface

// Config configures the UltraFace ONNX detector.
type Config struct {
	// ModelPath is the UltraFace ONNX file (version-RFB-320.onnx).
	ModelPath string
	// LibraryPath is the onnxruntime shared library.
	LibraryPath string
	// InputWidth and InputHeight are the model input dimensions.
	InputWidth  int
	InputHeight int
	// ConfidenceThreshold drops candidates whose face score is lower.
	ConfidenceThreshold float32
	// NMSThreshold is the IoU above which overlapping candidates are suppressed.
	NMSThreshold float32
	// IntraOpThreads sets onnxruntime's intra-op parallelism; 0 uses the default.
	IntraOpThreads int
}

// DefaultConfig returns the settings of the published RFB-320 model.
func DefaultConfig() Config {
	return Config{
		ModelPath:           "version-RFB-320.onnx",
		InputWidth:          320,
		InputHeight:         240,
		ConfidenceThreshold: 0.7,
		NMSThreshold:        0.3,
		IntraOpThreads:      2,
	}
}

var (
	strides  = []int{8, 16, 32, 64}
	minBoxes = [][]int{{10, 16, 24}, {32, 48}, {64, 96}, {128, 192, 256}}
)

// AnchorCount returns the number of prior boxes the model emits for an input size.
func AnchorCount(width, height int) int {
	n := 0
	for i, s := range strides {
		fw := (width + s - 1) / s
		fh := (height + s - 1) / s
		n += fw * fh * len(minBoxes[i])
	}
	return n
}
