package storage

// bootstrapKey stands in for the unkeyed record covering the most recent
// readings, so it can be tracked like any other boundary.
const bootstrapKey = "@bootstrap"

func identityKey(internalTime string) string {
	if internalTime == "" {
		return bootstrapKey
	}
	return internalTime
}

func sameBoundary(a, b Boundary) bool {
	return a.DisplayTime == b.DisplayTime &&
		a.OffsetHours == b.OffsetHours &&
		a.Timezone == b.Timezone &&
		a.Reason == b.Reason
}
