package request

// Train overrides the control panel defaults field by field.
type Train struct {
	Optimizer    *string  `json:"optimizer" validate:"omitempty,oneof=adam sgd"`
	LearningRate *float64 `json:"lr" validate:"omitempty,gt=0"`
	Epochs       *int     `json:"epochs" validate:"omitempty,min=1"`
	BatchSize    *int     `json:"batch_size" validate:"omitempty,min=1"`
}

type Export struct {
	Path string `json:"path"`
}
