package ports

import "context"

// PredictorPort scores a batch of encodings with a model.
type PredictorPort interface {
	// Predict returns one scalar per input, in input order.
	Predict(ctx context.Context, batch []string) ([]float64, error)
}
