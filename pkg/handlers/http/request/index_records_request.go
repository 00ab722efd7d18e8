package request

import "fmt"

const maxIndexBatch = 10000

type IndexRecordsRequest struct {
	IDs []string `json:"ids"` // @required
}

func (r *IndexRecordsRequest) Validate() error {
	if len(r.IDs) == 0 {
		return fmt.Errorf("ids is required")
	}
	if len(r.IDs) > maxIndexBatch {
		return fmt.Errorf("at most %d ids per request", maxIndexBatch)
	}
	return nil
}
