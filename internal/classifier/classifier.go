// Package classifier defines the image classifier collaborator and a local
// ONNX Runtime implementation of it.
package classifier

import "context"

// Client turns an encoded image into a probability vector aligned with the
// class catalog. Implementations are created once at startup and shared.
type Client interface {
	Classify(ctx context.Context, image []byte) ([]float64, error)
}

// Func adapts a plain function to Client.
type Func func(ctx context.Context, image []byte) ([]float64, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, image []byte) ([]float64, error) {
	return f(ctx, image)
}
