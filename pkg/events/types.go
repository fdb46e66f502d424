package events

const (
	TOPIC_ALL = "*"

	EVENT_TRANSFER_CREATED   = "Transfer.Created"
	EVENT_TRANSFER_PATCHED   = "Transfer.Patched"
	EVENT_TX_RECORD_INSERTED = "TxRecord.Inserted"
	EVENT_TX_RECORD_STALE    = "TxRecord.Stale"
)
