package bot

import (
	"strconv"
	"strings"

	"tg-photo-moderator/internal/usecase/moderation"
)

type callbackKind int

const (
	callbackUnknown callbackKind = iota
	callbackApprove
	callbackReject
	callbackPlanDelete
	callbackPlanDone
)

type callback struct {
	kind    callbackKind
	key     string
	index   int
	photoID string
}

// parseCallback разбирает данные кнопки. Непонятные данные дают callbackUnknown.
func parseCallback(data string) callback {
	switch {
	case strings.HasPrefix(data, moderation.ApprovePrefix):
		if key := strings.TrimPrefix(data, moderation.ApprovePrefix); key != "" {
			return callback{kind: callbackApprove, key: key}
		}
	case strings.HasPrefix(data, moderation.RejectPrefix):
		if key := strings.TrimPrefix(data, moderation.RejectPrefix); key != "" {
			return callback{kind: callbackReject, key: key}
		}
	case data == planDoneData:
		return callback{kind: callbackPlanDone}
	case strings.HasPrefix(data, planDeletePrefix):
		rest := strings.TrimPrefix(data, planDeletePrefix)
		rawIndex, photoID, _ := strings.Cut(rest, ":")
		index, err := strconv.Atoi(rawIndex)
		if err != nil || index < 0 {
			return callback{}
		}
		return callback{kind: callbackPlanDelete, index: index, photoID: photoID}
	}
	return callback{}
}
