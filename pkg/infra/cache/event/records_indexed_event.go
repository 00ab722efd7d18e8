package event

// RecordsIndexedEvent announces vectors written to the shared embedding
// repository by the replica named in Origin.
type RecordsIndexedEvent struct {
	Origin string   `json:"origin"`
	Kind   string   `json:"kind"`
	IDs    []string `json:"ids"`
}

func (e RecordsIndexedEvent) Type() string {
	return RecordsIndexedEventType
}
