package config

const (
	// TopicIngestSite carries asynchronous scrape-and-ingest tasks for a single URL.
	TopicIngestSite = "ingest.site"

	// ChannelIngestWorker is the consumer channel shared by ingest workers.
	ChannelIngestWorker = "ingest_worker"

	// ChannelSessionInvalidate is the Redis pub/sub channel used to evict chat sessions on peer replicas.
	ChannelSessionInvalidate = "webchat:sessions:invalidate"
)
