package channel

type Channel string

// IndexEvents carries index and cache notifications between replicas.
const IndexEvents Channel = "agentsearch_index_events"
