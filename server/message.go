package server

import "fmt"

const (
	MsgNoFace = "No faces detected in the photo. Make sure the face is clearly visible and well lit, then try again."

	MsgSingleFace = "One face detected."

	MsgMultipleFaces = "Multiple faces detected: %d"
)

func faceCountMessage(faceCount int) string {
	switch {
	case faceCount == 0:
		return MsgNoFace
	case faceCount == 1:
		return MsgSingleFace
	default:
		return fmt.Sprintf(MsgMultipleFaces, faceCount)
	}
}
