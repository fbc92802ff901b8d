package pipeline

import (
	"github.com/nerdneilsfield/go-csv-translator/internal/checkpoint"
	"github.com/nerdneilsfield/go-csv-translator/internal/dataset"
)

// State 管道的显式可变状态，由编排器独占持有并在批次间传递
type State struct {
	Dataset   *dataset.Dataset
	Completed checkpoint.CompletionSet
}

// NewState 创建管道状态
func NewState(ds *dataset.Dataset, completed checkpoint.CompletionSet) *State {
	if completed == nil {
		completed = checkpoint.NewCompletionSet()
	}
	return &State{
		Dataset:   ds,
		Completed: completed,
	}
}
