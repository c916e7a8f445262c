//go:build onnx

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// bertTokenizer handles BERT-style WordPiece tokenization, loaded from a
// HuggingFace tokenizer.json vocab table.
type bertTokenizer struct {
	vocab    map[string]int
	clsToken int
	sepToken int
	unkToken int
}

// ONNXConfig configures the local embedder.
type ONNXConfig struct {
	SharedLibraryPath string // path to libonnxruntime.so
	ModelPath         string
	TokenizerPath     string
	Dimension         int // default 384, all-MiniLM-L6-v2's width
	MaxSequenceLength int // default 128
}

// ONNXClient is a Client implementation that runs a local sentence
// embedding model through ONNX Runtime, for the "local-model fallback
// of equal dimension" requirement when no remote embeddings endpoint is
// reachable. Session setup, tensor shapes, and the pooled-vs-unpooled
// output handling are grounded in the same two-phase session
// construction (probe metadata, then build with explicit I/O names) and
// mean-pooling fallback used by the pack's only other ONNX consumer.
type ONNXClient struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *bertTokenizer
	dimension int
	maxLen    int
}

// NewONNXClient loads the tokenizer and model and initializes the ONNX
// Runtime environment. The shared library must be present at
// cfg.SharedLibraryPath; this is a process-wide one-time call.
func NewONNXClient(cfg ONNXConfig) (*ONNXClient, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("embedding: ModelPath is required")
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 384
	}
	if cfg.MaxSequenceLength == 0 {
		cfg.MaxSequenceLength = 128
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("embedding: initialize onnx runtime: %w", err)
	}

	tokenizer, err := loadBertTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("embedding: load tokenizer: %w", err)
	}

	// Probe the model once to confirm it loads before building the real
	// session with explicit input/output names.
	probe, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("embedding: probe onnx session: %w", err)
	}
	probe.Destroy()

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"last_hidden_state"}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("embedding: create onnx session: %w", err)
	}

	return &ONNXClient{
		session:   session,
		tokenizer: tokenizer,
		dimension: cfg.Dimension,
		maxLen:    cfg.MaxSequenceLength,
	}, nil
}

// Dimension returns the embedding vector size.
func (c *ONNXClient) Dimension() int {
	return c.dimension
}

// Close releases the ONNX session.
func (c *ONNXClient) Close() error {
	if c.session != nil {
		return c.session.Destroy()
	}
	return nil
}

// Embed runs one forward pass per text. ONNX Runtime sessions aren't
// batched here since the reference model is single-sequence; callers
// needing throughput should embed concurrently across Client instances.
func (c *ONNXClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := c.embedOne(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (c *ONNXClient) embedOne(text string) ([]float32, error) {
	tokens := c.tokenizer.tokenize(text)

	inputIDs := make([]int64, c.maxLen)
	attentionMask := make([]int64, c.maxLen)
	tokenTypeIDs := make([]int64, c.maxLen)

	inputIDs[0] = int64(c.tokenizer.clsToken)
	attentionMask[0] = 1

	tokenLen := len(tokens)
	if tokenLen > c.maxLen-2 {
		tokenLen = c.maxLen - 2
	}
	for i := 0; i < tokenLen; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	endPos := tokenLen + 1
	inputIDs[endPos] = int64(c.tokenizer.sepToken)
	attentionMask[endPos] = 1

	shape := ort.NewShape(1, int64(c.maxLen))
	inputIDsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("embedding: input_ids tensor: %w", err)
	}
	defer inputIDsTensor.Destroy()

	attentionMaskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("embedding: attention_mask tensor: %w", err)
	}
	defer attentionMaskTensor.Destroy()

	tokenTypeIDsTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("embedding: token_type_ids tensor: %w", err)
	}
	defer tokenTypeIDsTensor.Destroy()

	inputTensors := []ort.Value{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor}
	outputTensors := []ort.Value{nil}
	if err := c.session.Run(inputTensors, outputTensors); err != nil {
		return nil, fmt.Errorf("embedding: onnx inference: %w", err)
	}
	defer func() {
		for _, o := range outputTensors {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	if len(outputTensors) == 0 || outputTensors[0] == nil {
		return nil, fmt.Errorf("embedding: no output tensors returned")
	}
	outputTensor, ok := outputTensors[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("embedding: unexpected output tensor type")
	}

	outputData := outputTensor.GetData()
	outputShape := outputTensor.GetShape()

	var embedding []float32
	switch len(outputShape) {
	case 2:
		if len(outputData) < c.dimension {
			return nil, fmt.Errorf("embedding: output dimension mismatch: got %d, expected %d", len(outputData), c.dimension)
		}
		embedding = make([]float32, c.dimension)
		copy(embedding, outputData[:c.dimension])
	case 3:
		batchSize, seqLen, hiddenSize := outputShape[0], outputShape[1], outputShape[2]
		if batchSize != 1 {
			return nil, fmt.Errorf("embedding: expected batch size 1, got %d", batchSize)
		}
		if hiddenSize != int64(c.dimension) {
			return nil, fmt.Errorf("embedding: hidden size mismatch: got %d, expected %d", hiddenSize, c.dimension)
		}
		embedding = make([]float32, c.dimension)
		attended := float32(0)
		for i := 0; i < int(seqLen); i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * int(hiddenSize)
			for j := 0; j < int(hiddenSize); j++ {
				embedding[j] += outputData[offset+j]
			}
		}
		if attended == 0 {
			attended = 1
		}
		for j := 0; j < int(hiddenSize); j++ {
			embedding[j] /= attended
		}
	default:
		return nil, fmt.Errorf("embedding: unexpected output shape: %v", outputShape)
	}

	return normalizeUnit(embedding), nil
}

func normalizeUnit(vec []float32) []float32 {
	var sumSquares float32
	for _, v := range vec {
		sumSquares += v * v
	}
	if sumSquares == 0 {
		return vec
	}
	norm := float32(math.Sqrt(float64(sumSquares)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

func loadBertTokenizer(path string) (*bertTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return &bertTokenizer{
		vocab:    parsed.Model.Vocab,
		clsToken: 101,
		sepToken: 102,
		unkToken: 100,
	}, nil
}

func (t *bertTokenizer) tokenize(text string) []int64 {
	text = strings.ToLower(text)
	words := strings.Fields(text)

	var tokens []int64
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'")
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, sub := range t.wordPiece(word) {
			if id, ok := t.vocab[sub]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, int64(t.unkToken))
			}
		}
	}
	return tokens
}

func (t *bertTokenizer) wordPiece(word string) []string {
	if len(word) == 0 {
		return nil
	}
	var subwords []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for end > start {
			substr := word[start:end]
			if start > 0 {
				substr = "##" + substr
			}
			if _, ok := t.vocab[substr]; ok {
				subwords = append(subwords, substr)
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			subwords = append(subwords, "[UNK]")
			start++
		}
	}
	return subwords
}
