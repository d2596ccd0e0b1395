package channels

// Topic name helpers. These must line up with what the backend publishes on.

func RoomTopic(roomID string) string {
	return "room:" + roomID
}

func RoomHistoryTopic(roomID string) string {
	return "roomhistory:" + roomID
}

func PlayerTopic(playerID string) string {
	return "player:" + playerID
}
