package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func ok(c *gin.Context, status int, payload gin.H) {
	payload["status"] = "ok"
	c.JSON(status, payload)
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"status": "error", "error": err.Error()})
}

func failMsg(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"status": "error", "error": msg})
}

// parseSeekSeconds parses the "seconds" query/body field into a Duration.
func parseSeekSeconds(s string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
