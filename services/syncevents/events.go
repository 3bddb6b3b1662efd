package syncevents

const (
	TopicName = "integration"

	syncFailedName    = TopicName + ".sync.failed"
	syncCompletedName = TopicName + ".sync.completed"
)

type SyncType string

const (
	SyncTypeOrder       SyncType = "order"
	SyncTypeUpsellOrder SyncType = "upsell_order"
)

// SyncFailed is emitted when an order could not be delivered to the CRM. It
// carries the original trigger event so that a retry can re-drive the exact
// same sync.
type SyncFailed struct {
	SessionUID           string
	Service              string
	Type                 SyncType
	OriginalEventType    string
	OriginalEventPayload string
	Error                string
	Retryable            bool
}

func (e SyncFailed) GetEventTypeName() string {
	return syncFailedName
}

func (e SyncFailed) GetAggregateName() string {
	return e.SessionUID
}

type SyncCompleted struct {
	SessionUID  string
	Type        SyncType
	CRMOrderUID string
	OrderNumber string
}

func (e SyncCompleted) GetEventTypeName() string {
	return syncCompletedName
}

func (e SyncCompleted) GetAggregateName() string {
	return e.SessionUID
}
