package pubsub

// Wildcard subscribes to every topic the broker routes to this connection
const Wildcard = "#"

// HouseholdTopic is the household-scoped topic
func HouseholdTopic(householdID string) string {
	return householdID
}

// DeviceTopic is the device-scoped command topic of a box (or of the controller itself)
func DeviceTopic(householdID, deviceID string) string {
	return householdID + "/" + deviceID
}

// StatusTopic is the connectivity status topic of a device
func StatusTopic(householdID, deviceID string) string {
	return DeviceTopic(householdID, deviceID) + "/status"
}

// LocalRecordingsTopic is the local recordings topic of a device
func LocalRecordingsTopic(householdID, deviceID string) string {
	return DeviceTopic(householdID, deviceID) + "/localRecordings"
}

// LocalRecordingsCapacityTopic is the local recordings capacity topic of a device
func LocalRecordingsCapacityTopic(householdID, deviceID string) string {
	return LocalRecordingsTopic(householdID, deviceID) + "/capacity"
}

// registrationTopics are subscribed after every successful connect
func registrationTopics(householdID string) []string {
	return []string{
		Wildcard,
		HouseholdTopic(householdID),
		StatusTopic(householdID, "+"),
		LocalRecordingsTopic(householdID, "+"),
		LocalRecordingsCapacityTopic(householdID, "+"),
	}
}
