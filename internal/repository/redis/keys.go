package redis

import "fmt"

const ns = "eventhub:v1"

func KeyEventSummary(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:summary", ns, eventID)
}

func KeyEventSnapshot(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:snapshot", ns, eventID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemRegister(eventID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:register:%d:%s", ns, eventID, idemKey)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
