package bloodbank

const (
	TopicNotifications = "bloodbank.notifications"
	TopicSMS           = "bloodbank.alert.sms"
)

// Partition key = target id, so one audience sees its events in order.
func PartitionKey(targetID string) []byte { return []byte(targetID) }

// RealtimeChannel maps an audience to the pub/sub channel the realtime
// gateway subscribes to.
func RealtimeChannel(ch Channel, targetID string) string {
	switch ch {
	case ChannelBroadcast:
		return "topic:org:broadcast"
	case ChannelOrganization:
		return "topic:org:" + targetID
	default:
		return "topic:" + string(ch) + ":" + targetID
	}
}
