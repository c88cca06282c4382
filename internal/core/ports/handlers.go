package ports

import (
	"github.com/gin-gonic/gin"
)

type RecordingHTTPHandler interface {
	ListRecordings(c *gin.Context)
	GetRecording(c *gin.Context)
	CreateRecording(c *gin.Context)
	DeleteRecording(c *gin.Context)
}

type SessionHTTPHandler interface {
	GetStatus(c *gin.Context)
	StartShare(c *gin.Context)
	StartRecord(c *gin.Context)
	StopRecord(c *gin.Context)
	StopAll(c *gin.Context)
}
