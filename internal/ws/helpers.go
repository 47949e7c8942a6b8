package ws

import (
	"strconv"

	"github.com/google/uuid"
)

func newConnID() string {
	return uuid.NewString()
}

func parsePositiveID(raw string) (int, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
