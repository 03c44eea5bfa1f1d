package cli

var (
	RunForTest     = run
	GetIndexConfig = getIndexConfig
	MessageItems   = messageItems
	UsageIndexer   = usageIndexer
)
